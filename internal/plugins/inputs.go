// ABOUTME: Small helpers shared by the plugin handlers
// ABOUTME: Input extraction and upstream-error to result mapping

package plugins

import (
	"errors"
	"net/http"

	"github.com/loomworks/plugin-gateway/internal/contract"
)

// stringInput reads a string-typed input by key. Missing keys and
// non-string values both come back as the empty string.
func stringInput(inputs map[string]any, key string) string {
	if inputs == nil {
		return ""
	}
	s, _ := inputs[key].(string)
	return s
}

type statusCoder interface {
	HTTPStatusCode() int
}

// upstreamResult maps an upstream failure to a result. Client-attributable
// upstream statuses pass through; everything else is reported as a bad
// gateway so upstream 5xx never masquerades as our own server error.
func upstreamResult(err error, message string) *contract.Result {
	status := http.StatusBadGateway
	var sc statusCoder
	if errors.As(err, &sc) {
		if code := sc.HTTPStatusCode(); code >= 400 && code < 500 {
			status = code
		}
	}
	return contract.Upstream(status, message)
}
