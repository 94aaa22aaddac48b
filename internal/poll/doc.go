// Copyright (c) 2025
// Author: momentics <momentics@gmail.com>

// Package poll wraps the poll(2) system call and the raw socket reads and
// writes of the event loops, with interrupted calls retried.
package poll
