// Copyright (c) 2025
// Author: momentics <momentics@gmail.com>

// Package endpoint resolves textual endpoint specifications into bindable
// socket specs.
//
// The grammar is host[":"port] or a filesystem path. A host is a domain
// name, an IPv4 dotted decimal, or a bracketed IPv6 literal; a path begins
// with "/" or "." and denotes a filesystem socket. Hostnames may resolve to
// a chain of alternatives.
package endpoint
