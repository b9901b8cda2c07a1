package engine

import "errors"

var (
	// ErrInvalidArgument is returned for empty or malformed queue names,
	// resource keys and payloads.
	ErrInvalidArgument = errors.New("engine: invalid argument")
	// ErrNoToken is returned by Run when no token has been set.
	ErrNoToken = errors.New("engine: no token")
	// ErrRunning is returned by Run when a run is already in progress.
	ErrRunning = errors.New("engine: already running")
)
