package core

import "golang.org/x/sys/unix"

// threadTime returns the CPU time of the calling OS thread in microseconds.
func threadTime() uint64 {
	var ts unix.Timespec
	if err := unix.ClockGettime(unix.CLOCK_THREAD_CPUTIME_ID, &ts); err != nil {
		return 0
	}
	return uint64(ts.Nano() / 1000)
}
