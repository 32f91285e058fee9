package github_test

import (
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"

	ghAdapter "github.com/ericfisherdev/issuesync/internal/adapter/driven/github"
)

func TestRedactHeaders(t *testing.T) {
	h := http.Header{}
	h.Set("Authorization", "Bearer secret")
	h.Set("Proxy-Authorization", "Basic secret")
	h.Set("Cookie", "session=secret")
	h.Set("Accept", "application/vnd.github+json")

	out := ghAdapter.RedactHeaders(h)

	assert.Equal(t, "[REDACTED]", out.Get("Authorization"))
	assert.Equal(t, "[REDACTED]", out.Get("Proxy-Authorization"))
	assert.Equal(t, "[REDACTED]", out.Get("Cookie"))
	assert.Equal(t, "application/vnd.github+json", out.Get("Accept"))
	assert.Equal(t, "Bearer secret", h.Get("Authorization"), "input must not be modified")
}

func TestRedactHeaders_Nil(t *testing.T) {
	assert.Empty(t, ghAdapter.RedactHeaders(nil))
}
