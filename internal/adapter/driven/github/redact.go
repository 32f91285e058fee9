package github

import "net/http"

const redacted = "[REDACTED]"

// sensitiveHeaders carry credentials and are never logged verbatim.
var sensitiveHeaders = []string{"Authorization", "Proxy-Authorization", "Cookie"}

// RedactHeaders returns a copy of h with credential-bearing headers masked.
// The input is not modified.
func RedactHeaders(h http.Header) http.Header {
	out := h.Clone()
	if out == nil {
		return http.Header{}
	}
	for _, name := range sensitiveHeaders {
		if _, ok := out[http.CanonicalHeaderKey(name)]; ok {
			out.Set(name, redacted)
		}
	}
	return out
}
