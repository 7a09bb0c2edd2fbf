package rest

import (
	"mime"
	"net/http"
	"strings"
)

// MediaType is the JSON:API media type.
const MediaType = "application/vnd.api+json"

// Prefer holds preferences from the Prefer header (RFC 7240).
type Prefer struct {
	Return string // "minimal" or "representation"
}

// parsePrefer parses the Prefer header according to RFC 7240.
// It returns nil if the header is not present.
func parsePrefer(r *http.Request) *Prefer {
	header := r.Header.Get("Prefer")
	if header == "" {
		return nil
	}

	p := &Prefer{Return: "representation"}
	parseKeyValPairs(header, func(key, value string) {
		if key == "return" && isValidReturn(value) {
			p.Return = strings.ToLower(value)
		}
	})
	return p
}

// parseKeyValPairs parses comma-separated preference directives.
// For each key=value pair found, it calls fn with the key and value.
func parseKeyValPairs(header string, fn func(key, value string)) {
	for pref := range strings.SplitSeq(header, ",") {
		pref = strings.TrimSpace(pref)
		if key, value, found := strings.Cut(pref, "="); found {
			key = strings.TrimSpace(strings.ToLower(key))
			value = strings.Trim(strings.TrimSpace(value), `"`)
			fn(key, value)
		}
	}
}

func isValidReturn(s string) bool {
	switch strings.ToLower(s) {
	case "minimal", "representation":
		return true
	}
	return false
}

// WantsMinimal reports whether the client asked for an empty body on writes.
func (p *Prefer) WantsMinimal() bool {
	return p != nil && p.Return == "minimal"
}

// checkContentType accepts request bodies sent as JSON:API or plain JSON.
// The JSON:API media type carries no parameters other than ext and profile.
func checkContentType(r *http.Request) bool {
	ct := r.Header.Get("Content-Type")
	if ct == "" {
		return true
	}
	mt, params, err := mime.ParseMediaType(ct)
	if err != nil {
		return false
	}
	switch mt {
	case "application/json":
		return true
	case MediaType:
		for k := range params {
			if k != "ext" && k != "profile" {
				return false
			}
		}
		return true
	}
	return false
}
