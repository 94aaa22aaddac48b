// Copyright (c) 2025
// Author: momentics <momentics@gmail.com>

// Package shm implements a communication domain over a file-backed shared
// memory mapping.
//
// N cooperating processes, named by rank 0..N-1, each own one mailbox: a
// ring buffer any participant can write to. Writes and reads of arbitrary
// length are atomic — a sender holds the mailbox's writing token across
// ring wraps, so messages from different senders never interleave. The
// domain also provides an all-participant barrier and a creator-initiated
// terminating shutdown that wakes every blocked participant.
//
// All synchronization lives inside the mapping as futex words, so the
// region can be mapped at a different address in every participant;
// nothing inside it stores pointers.
package shm
