//go:build !linux

package core

// threadTime is not available on this platform; profiling reports zero.
func threadTime() uint64 {
	return 0
}
