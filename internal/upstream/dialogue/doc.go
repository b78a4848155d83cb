// Package dialogue is a minimal chat-completions client for the
// language-model API used by the conversational plugins.
package dialogue
