// Package sessionstore is the HTTP client for the remote session store.
//
// The store is the single source of truth for session metadata. Numeric
// metadata fields travel as decimal strings on the wire; this package
// converts at the boundary so the rest of the gateway works with ints.
// Requests carry a service bearer token and a correlation id header.
package sessionstore
