package llm

import (
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// LoggingTransport logs each outbound provider call at debug level with
// credentials stripped from headers and query strings.
type LoggingTransport struct {
	base http.RoundTripper
	log  zerolog.Logger
}

func NewLoggingTransport(base http.RoundTripper, logger zerolog.Logger) *LoggingTransport {
	if base == nil {
		base = http.DefaultTransport
	}
	return &LoggingTransport{base: base, log: logger}
}

func (t *LoggingTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	start := time.Now()
	resp, err := t.base.RoundTrip(req)

	if e := t.log.Debug(); e.Enabled() {
		e = e.Str("method", req.Method).
			Str("url", redactURL(req.URL)).
			Interface("headers", redactHeaders(req.Header)).
			Dur("elapsed", time.Since(start))
		if err != nil {
			e.Err(err).Msg("provider request failed")
		} else {
			e.Int("status", resp.StatusCode).Msg("provider request")
		}
	}
	return resp, err
}

var sensitiveHeaders = map[string]bool{
	"authorization": true,
	"x-api-key":     true,
	"cookie":        true,
}

func redactHeaders(h http.Header) map[string]string {
	out := make(map[string]string, len(h))
	for k, v := range h {
		if sensitiveHeaders[strings.ToLower(k)] {
			out[k] = "REDACTED"
			continue
		}
		out[k] = strings.Join(v, ",")
	}
	return out
}

func redactURL(u *url.URL) string {
	if u == nil {
		return ""
	}
	c := *u
	q := c.Query()
	if q.Has("key") {
		q.Set("key", "REDACTED")
		c.RawQuery = q.Encode()
	}
	return c.String()
}
