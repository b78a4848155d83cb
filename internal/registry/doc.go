// Package registry holds the process-wide mapping from plugin name to
// handler.
//
// The registry is populated once during startup, sealed before the
// gateway starts serving, and read-only from then on. Duplicate names
// and post-seal registration are errors so a misconfigured plugin set
// fails at boot instead of shadowing a handler at dispatch time.
package registry
