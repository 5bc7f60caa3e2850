package core

import "errors"

// Send errors
var (
	ErrDestinationNotFound = errors.New("destination not found")
	ErrMessageTooLarge     = errors.New("message too large")
	ErrInvalidAddress      = errors.New("invalid service address")
)

// Launch errors
var (
	ErrModuleNotFound   = errors.New("module not found")
	ErrModuleCreate     = errors.New("module create failed")
	ErrModuleInit       = errors.New("module init failed")
	ErrModuleExists     = errors.New("module already registered")
	ErrTooManyModules   = errors.New("too many module types")
	ErrContextReleased  = errors.New("context released during init")
	ErrBootstrapFailure = errors.New("bootstrap failed")
)

// Env errors
var (
	ErrEnvKeyExists = errors.New("env key already set")
)
