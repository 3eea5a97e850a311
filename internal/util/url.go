package util

import (
	"net/url"
	"strings"

	"github.com/rs/zerolog/log"
)

// NormaliseDomain removes http/https prefix and www. from a domain string
func NormaliseDomain(domain string) string {
	domain = strings.TrimPrefix(domain, "http://")
	domain = strings.TrimPrefix(domain, "https://")
	domain = strings.TrimPrefix(domain, "www.")
	domain = strings.TrimSuffix(domain, "/")

	return strings.ToLower(domain)
}

// NormaliseURL canonicalises a URL so it can serve as an admission-set key:
// lowercased host, default port and fragment stripped, https assumed when no
// scheme is given. Returns "" when the input cannot be parsed into a usable
// URL.
func NormaliseURL(rawURL string) string {
	rawURL = strings.TrimSpace(rawURL)
	if rawURL == "" {
		return ""
	}

	// Default to https when no scheme was supplied
	if !strings.HasPrefix(rawURL, "http://") && !strings.HasPrefix(rawURL, "https://") {
		rawURL = "https://" + rawURL
	}

	parsedURL, err := url.Parse(rawURL)
	if err != nil || parsedURL.Scheme == "" || parsedURL.Host == "" {
		log.Debug().Str("url", rawURL).Err(err).Msg("Invalid URL format")
		return ""
	}

	// Guard against embedded schemes (like https://http://example.com),
	// which parse into a host ending in a bare colon
	if strings.Contains(parsedURL.Host, "://") || strings.HasSuffix(parsedURL.Host, ":") {
		log.Debug().Str("url", rawURL).Msg("URL contains embedded scheme in host part")
		return ""
	}

	host := strings.ToLower(parsedURL.Host)
	if parsedURL.Scheme == "https" {
		host = strings.TrimSuffix(host, ":443")
	} else {
		host = strings.TrimSuffix(host, ":80")
	}
	parsedURL.Host = host
	parsedURL.Fragment = ""

	return parsedURL.String()
}

// ExtractPathFromURL extracts just the path component from a full URL
func ExtractPathFromURL(fullURL string) string {
	path := fullURL
	path = strings.TrimPrefix(path, "http://")
	path = strings.TrimPrefix(path, "https://")
	path = strings.TrimPrefix(path, "www.")

	// Everything from the first slash after the host
	domainEnd := strings.Index(path, "/")
	if domainEnd != -1 {
		path = path[domainEnd:]
	} else {
		path = "/"
	}

	return path
}

// BaseURL returns the scheme://host portion of a URL, or "" when unparsable.
func BaseURL(rawURL string) string {
	parsed, err := url.Parse(rawURL)
	if err != nil || parsed.Scheme == "" || parsed.Host == "" {
		return ""
	}
	return parsed.Scheme + "://" + parsed.Host
}
