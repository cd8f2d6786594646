package reporting

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/getsentry/sentry-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCaptureErrorWithoutInit(t *testing.T) {
	assert.NotPanics(t, func() {
		CaptureError(errors.New("boom"), map[string]string{"kind": "upstream"})
		CaptureError(nil, nil)
	})
}

func TestCaptureErrorSendsTags(t *testing.T) {
	var mu sync.Mutex
	var events []*sentry.Event

	err := initWithOptions(sentry.ClientOptions{
		BeforeSend: func(event *sentry.Event, hint *sentry.EventHint) *sentry.Event {
			mu.Lock()
			events = append(events, event)
			mu.Unlock()
			return nil
		},
	})
	require.NoError(t, err)
	defer sentry.CurrentHub().BindClient(nil)

	CaptureError(errors.New("model is loading"), map[string]string{"backend": "pipeline"})
	Flush(time.Second)

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, events, 1)
	assert.Equal(t, "pipeline", events[0].Tags["backend"])
	require.NotEmpty(t, events[0].Exception)
	assert.Equal(t, "model is loading", events[0].Exception[0].Value)
}
