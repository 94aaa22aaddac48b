// Copyright (c) 2025
// Author: momentics <momentics@gmail.com>

// Package session frames the byte stream of a multiplexed TCP connection
// into requests with a Perl-compatible regular expression.
//
// A service compiles one pattern at startup and applies it, anchored at the
// read cursor of a per-session sliding buffer, to the accumulated input.
// Every complete match invokes the request callback exactly once with the
// matched byte range; an incomplete tail waits for more input until the
// peer closes.
package session
