// File: api/errors.go
// Author: momentics <momentics@gmail.com>
//
// Common error values used across the hioload-mux packages.

package api

import "errors"

var (
	// ErrInvalidEndpoint reports an endpoint string that matches neither
	// host[:port] nor a filesystem socket path.
	ErrInvalidEndpoint = errors.New("invalid endpoint specification")

	// ErrNoInputHandler reports a multiplexor started without the one
	// mandatory callback.
	ErrNoInputHandler = errors.New("input handler must not be nil")

	// ErrBadPattern reports a request pattern that failed to compile.
	ErrBadPattern = errors.New("request pattern does not compile")

	// ErrRankOutOfRange reports a participant rank outside [0, N).
	ErrRankOutOfRange = errors.New("rank out of range")

	// ErrBadHeader reports a shared mapping whose header is missing or
	// inconsistent with the backing file.
	ErrBadHeader = errors.New("shared domain header invalid")

	// ErrNotCreator reports a creator-only operation invoked by a
	// connected participant.
	ErrNotCreator = errors.New("operation restricted to the domain creator")

	// ErrTerminating reports a domain already shut down.
	ErrTerminating = errors.New("shared domain is terminating")
)
