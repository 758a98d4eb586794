package errorreporting

import (
	"fmt"
	"regexp"
	"strings"
	"sync/atomic"
	"time"

	"github.com/getsentry/sentry-go"
)

// PII patterns to scrub from error messages
var piiPatterns = []*regexp.Regexp{
	// Email addresses
	regexp.MustCompile(`[a-zA-Z0-9._%+-]+@[a-zA-Z0-9.-]+\.[a-zA-Z]{2,}`),
	// Bearer tokens
	regexp.MustCompile(`(?i)bearer\s+[a-zA-Z0-9_.-]{20,}`),
	// API keys and tokens
	regexp.MustCompile(`(?i)(api[_-]?key|token|secret)["\s:=]+[a-zA-Z0-9_-]{16,}`),
	// Connection string credentials
	regexp.MustCompile(`://[^:/\s]+:[^@\s]+@`),
	// IP addresses
	regexp.MustCompile(`\b(?:\d{1,3}\.){3}\d{1,3}\b`),
}

var enabled atomic.Bool

// Options configures Sentry.
type Options struct {
	DSN         string
	Environment string
	Release     string
	SampleRate  float64
}

// Init initializes Sentry error reporting. An empty DSN leaves reporting disabled.
func Init(opts Options) error {
	if opts.DSN == "" {
		return nil
	}
	if err := ValidateDSN(opts.DSN); err != nil {
		return err
	}
	if opts.Release == "" {
		opts.Release = "dev"
	}

	err := sentry.Init(sentry.ClientOptions{
		Dsn:              opts.DSN,
		Environment:      opts.Environment,
		Release:          opts.Release,
		SampleRate:       opts.SampleRate,
		BeforeSend:       beforeSend,
		AttachStacktrace: true,
	})
	if err != nil {
		return fmt.Errorf("failed to initialize Sentry: %w", err)
	}
	enabled.Store(true)
	return nil
}

// beforeSend scrubs PII and strips credentials from events.
func beforeSend(event *sentry.Event, hint *sentry.EventHint) *sentry.Event {
	for i := range event.Exception {
		event.Exception[i].Value = scrubPII(event.Exception[i].Value)
	}

	if event.Message != "" {
		event.Message = scrubPII(event.Message)
	}

	for key, value := range event.Extra {
		if str, ok := value.(string); ok {
			event.Extra[key] = scrubPII(str)
		}
	}

	if event.Request != nil {
		if event.Request.Headers != nil {
			delete(event.Request.Headers, "Authorization")
			delete(event.Request.Headers, "Cookie")
			delete(event.Request.Headers, "X-Api-Key")
		}
		event.Request.QueryString = ""
	}

	return event
}

// scrubPII removes personally identifiable information from strings
func scrubPII(text string) string {
	result := text
	for _, pattern := range piiPatterns {
		result = pattern.ReplaceAllString(result, "[REDACTED]")
	}
	return result
}

// ScrubPII exposes the PII scrubbing function for external use
func ScrubPII(text string) string {
	return scrubPII(text)
}

// CaptureError captures an error and sends it to Sentry
func CaptureError(err error) {
	if err == nil || !enabled.Load() {
		return
	}
	sentry.CaptureException(err)
}

// CaptureErrorWithContext captures an error with tags and extra data.
func CaptureErrorWithContext(err error, tags map[string]string, extras map[string]interface{}) {
	if err == nil || !enabled.Load() {
		return
	}

	sentry.WithScope(func(scope *sentry.Scope) {
		for k, v := range tags {
			scope.SetTag(k, v)
		}
		// Extras are scrubbed by beforeSend
		for k, v := range extras {
			scope.SetExtra(k, v)
		}
		sentry.CaptureException(err)
	})
}

// Flush waits for all events to be sent to Sentry
func Flush(timeout time.Duration) bool {
	if !enabled.Load() {
		return true
	}
	return sentry.Flush(timeout)
}

// IsSentryEnabled returns true once Init has configured a client.
func IsSentryEnabled() bool {
	return enabled.Load()
}

// ValidateDSN checks if the provided DSN is valid
func ValidateDSN(dsn string) error {
	if !strings.HasPrefix(dsn, "https://") && !strings.HasPrefix(dsn, "http://") {
		return fmt.Errorf("invalid Sentry DSN format")
	}
	return nil
}
