// Copyright (c) 2025
// Author: momentics <momentics@gmail.com>

// Package api holds the shared error values of the hioload-mux library.
//
// The session multiplexors report peer-originated conditions (EOF, reset,
// retry exhaustion) through their close callbacks, never as errors; the
// values below cover setup and configuration failures only.
package api
