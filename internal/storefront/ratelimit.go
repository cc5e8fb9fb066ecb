package storefront

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/dunglas/httpsfv"
)

// retryAfter extracts a throttling hint from a 429 response.
// Sources, in order:
//   - RateLimit: "default";r=0;t=30        (structured List, t = seconds to reset)
//   - RateLimit: limit=100, remaining=0, reset=30   (older Dictionary form)
//   - Retry-After: 30 | Wed, 21 Oct 2026 07:28:00 GMT
//
// Returns 0 when no usable hint is present.
func retryAfter(h http.Header, now time.Time) time.Duration {
	if v := h.Get("RateLimit"); v != "" {
		if d, ok := parseRateLimit(v); ok {
			return d
		}
	}
	if v := h.Get("Retry-After"); v != "" {
		return parseRetryAfter(v, now)
	}
	return 0
}

func parseRateLimit(header string) (time.Duration, bool) {
	header = strings.TrimSpace(header)

	if dict, err := httpsfv.UnmarshalDictionary([]string{header}); err == nil {
		if member, ok := dict.Get("reset"); ok {
			if item, ok := member.(httpsfv.Item); ok {
				if secs, ok := item.Value.(int64); ok && secs >= 0 {
					return time.Duration(secs) * time.Second, true
				}
			}
		}
	}

	list, err := httpsfv.UnmarshalList([]string{header})
	if err != nil {
		return 0, false
	}
	for _, member := range list {
		item, ok := member.(httpsfv.Item)
		if !ok || item.Params == nil {
			continue
		}
		if t, ok := item.Params.Get("t"); ok {
			if secs, ok := t.(int64); ok && secs >= 0 {
				return time.Duration(secs) * time.Second, true
			}
		}
	}
	return 0, false
}

func parseRetryAfter(v string, now time.Time) time.Duration {
	v = strings.TrimSpace(v)
	if secs, err := strconv.Atoi(v); err == nil {
		if secs < 0 {
			return 0
		}
		return time.Duration(secs) * time.Second
	}
	if at, err := http.ParseTime(v); err == nil && at.After(now) {
		return at.Sub(now)
	}
	return 0
}
