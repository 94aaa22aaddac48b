// Copyright (c) 2025
// Author: momentics <momentics@gmail.com>

// Package buffer provides a growable byte buffer and a sliding variant
// with a read cursor.
//
// The sliding buffer is the accumulation area of the framed session layer:
// bytes before the cursor are consumed, bytes between cursor and length are
// unread, and the live suffix is shifted to the front when that reclaims
// enough space to avoid an allocation.
package buffer
