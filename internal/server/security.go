package server

import (
	"net/http"
	"strings"
)

// MaxQueryParamLength bounds user-supplied query values such as citations.
const MaxQueryParamLength = 256

// CSPConfig holds Content-Security-Policy configuration.
type CSPConfig struct {
	DefaultSrc     []string
	FrameAncestors []string
	BaseURI        []string
	FormAction     []string
}

// APICSPConfig returns a strict CSP for JSON endpoints, which never load
// resources.
func APICSPConfig() CSPConfig {
	return CSPConfig{
		DefaultSrc:     []string{"'none'"},
		FrameAncestors: []string{"'none'"},
		BaseURI:        []string{"'none'"},
		FormAction:     []string{"'none'"},
	}
}

// BuildCSPHeader builds a Content-Security-Policy header value from config.
func (cfg CSPConfig) BuildCSPHeader() string {
	var directives []string
	add := func(name string, sources []string) {
		if len(sources) > 0 {
			directives = append(directives, name+" "+strings.Join(sources, " "))
		}
	}
	add("default-src", cfg.DefaultSrc)
	add("frame-ancestors", cfg.FrameAncestors)
	add("base-uri", cfg.BaseURI)
	add("form-action", cfg.FormAction)
	return strings.Join(directives, "; ")
}

// SecurityHeadersWithCSP adds the standard security headers plus CSP.
func SecurityHeadersWithCSP(cfg CSPConfig, next http.Handler) http.Handler {
	cspHeader := cfg.BuildCSPHeader()
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Content-Type-Options", "nosniff")
		w.Header().Set("X-Frame-Options", "DENY")
		w.Header().Set("Referrer-Policy", "strict-origin-when-cross-origin")
		if cspHeader != "" {
			w.Header().Set("Content-Security-Policy", cspHeader)
		}
		next.ServeHTTP(w, r)
	})
}

// SanitizeUserInput trims whitespace and removes control characters.
func SanitizeUserInput(input string) string {
	input = strings.TrimSpace(input)

	var result strings.Builder
	for _, r := range input {
		if r >= 0x20 && r != 0x7f {
			result.WriteRune(r)
		}
	}
	return result.String()
}

// LimitStringLength truncates a string to at most maxLength bytes without
// splitting a UTF-8 sequence.
func LimitStringLength(input string, maxLength int) string {
	if len(input) <= maxLength {
		return input
	}
	cut := maxLength
	for cut > 0 && !isRuneStart(input[cut]) {
		cut--
	}
	return input[:cut]
}

func isRuneStart(b byte) bool { return b&0xC0 != 0x80 }

// QueryParam returns the sanitized, length-limited value of a query parameter.
func QueryParam(r *http.Request, name string) string {
	return LimitStringLength(SanitizeUserInput(r.URL.Query().Get(name)), MaxQueryParamLength)
}
