// Package config provides error definitions for configuration management
package config

import "errors"

// Configuration validation errors
var (
	ErrInvalidAppName     = errors.New("invalid application name")
	ErrInvalidEnvironment = errors.New("invalid environment")
	ErrInvalidLogLevel    = errors.New("invalid log level")
	ErrInvalidPort        = errors.New("invalid port number")
	ErrInvalidThreadCount = errors.New("invalid thread count")
	ErrInvalidHarbor      = errors.New("invalid harbor id")
	ErrInvalidLogService  = errors.New("invalid log service")
)

// Configuration loading errors
var (
	ErrConfigFileNotFound = errors.New("configuration file not found")
	ErrConfigWatchError   = errors.New("configuration watch error")
)
