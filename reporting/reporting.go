// Package reporting forwards unexpected failures to Sentry when a DSN is
// configured. Without Init every call is a no-op.
package reporting

import (
	"time"

	"github.com/getsentry/sentry-go"
)

// Init configures the global Sentry client. An empty dsn disables sending.
func Init(dsn, environment, release string) error {
	return initWithOptions(sentry.ClientOptions{
		Dsn:         dsn,
		Environment: environment,
		Release:     release,
	})
}

func initWithOptions(opts sentry.ClientOptions) error {
	return sentry.Init(opts)
}

// CaptureError sends err with the given tags.
func CaptureError(err error, tags map[string]string) {
	if err == nil {
		return
	}
	sentry.WithScope(func(scope *sentry.Scope) {
		scope.SetTags(tags)
		sentry.CaptureException(err)
	})
}

// Flush waits for buffered events to be sent.
func Flush(timeout time.Duration) bool {
	return sentry.Flush(timeout)
}
