// Copyright (c) 2025
// Author: momentics <momentics@gmail.com>

// Package mux hosts many concurrent TCP sessions in one goroutine without
// further threads.
//
// Run accepts connections on a listening descriptor, monitors every
// accepted descriptor for readability and writability with poll(2), and
// drives the open, input and close callbacks of a session service. Response
// bytes are enqueued without blocking and drained as the peer accepts them.
//
// All callbacks run on the loop goroutine and observe the multiplexor in a
// stable state; they may call Read, Write and Close synchronously. The
// input callback must call Read exactly once per invocation.
package mux
