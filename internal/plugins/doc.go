// Package plugins holds the built-in plugin handlers served by the
// gateway.
//
// Every plugin implements contract.Handler and translates its own
// failures into results: validation problems become 400s, unknown
// sessions become 404s, and upstream failures surface as 502s (or the
// upstream's own client-attributable status). Handlers never return an
// error across the dispatcher boundary.
//
// The built-ins are echo (reflects inputs, used for connectivity
// checks), dialogue (multi-turn conversations over the session
// manager), and summary (stateless single-shot summarization).
package plugins
