//go:build unit || !integration

package util

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNormaliseDomain(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{"plain domain", "example.com", "example.com"},
		{"https prefix", "https://example.com", "example.com"},
		{"http prefix", "http://example.com", "example.com"},
		{"www prefix", "www.example.com", "example.com"},
		{"trailing slash", "example.com/", "example.com"},
		{"mixed case", "Example.COM", "example.com"},
		{"everything", "https://www.Example.com/", "example.com"},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.expected, NormaliseDomain(tt.input))
		})
	}
}

func TestNormaliseURL(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{"bare domain defaults to https", "example.com/page", "https://example.com/page"},
		{"explicit http preserved", "http://example.com/page", "http://example.com/page"},
		{"host lowercased", "https://EXAMPLE.com/Page", "https://example.com/Page"},
		{"default https port stripped", "https://example.com:443/page", "https://example.com/page"},
		{"default http port stripped", "http://example.com:80/page", "http://example.com/page"},
		{"fragment stripped", "https://example.com/page#section", "https://example.com/page"},
		{"whitespace trimmed", "  https://example.com  ", "https://example.com"},
		{"empty", "", ""},
		{"whitespace only", "   ", ""},
		{"embedded scheme rejected", "https://http://example.com", ""},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.expected, NormaliseURL(tt.input))
		})
	}
}

func TestExtractPathFromURL(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{"full url", "https://example.com/blog/post", "/blog/post"},
		{"no path", "https://example.com", "/"},
		{"root path", "https://example.com/", "/"},
		{"with query", "https://example.com/search?q=x", "/search?q=x"},
		{"www stripped", "https://www.example.com/about", "/about"},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.expected, ExtractPathFromURL(tt.input))
		})
	}
}

func TestBaseURL(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "https://example.com", BaseURL("https://example.com/blog/post?x=1"))
	assert.Equal(t, "http://example.com:8080", BaseURL("http://example.com:8080/page"))
	assert.Equal(t, "", BaseURL("not a url"))
	assert.Equal(t, "", BaseURL("/relative/path"))
}
