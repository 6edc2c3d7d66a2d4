package config

import "errors"

// Package-specific errors
var (
	// ErrParsingConfig is returned when environment variables cannot be parsed into the config struct
	ErrParsingConfig = errors.New("failed to parse environment variables into config")

	// ErrConfigNotLoaded is returned when attempting to access a config that hasn't been loaded
	ErrConfigNotLoaded = errors.New("configuration has not been loaded")

	// ErrNilPointer is returned when a nil pointer is provided to Load
	ErrNilPointer = errors.New("nil pointer provided to config loader")

	// ErrLoadingEnvFile is returned when an explicitly requested .env file cannot be read
	ErrLoadingEnvFile = errors.New("failed to load env file")

	// ErrReadingQueuesFile is returned when the queue definitions file cannot be read or decoded
	ErrReadingQueuesFile = errors.New("failed to read queue definitions")

	// ErrInvalidQueueDefinition is returned when a queue definition is incomplete or duplicated
	ErrInvalidQueueDefinition = errors.New("invalid queue definition")
)
