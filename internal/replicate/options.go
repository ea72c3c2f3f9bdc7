package replicate

import (
	"log/slog"
	"time"

	"github.com/cenkalti/backoff"
)

// Defaults applied by Options.withDefaults.
const (
	DefaultBatchSize       = 100
	DefaultLongpollTimeout = 25 * time.Second
	DefaultPollInterval    = 10 * time.Second
	DefaultInitialBackoff  = 500 * time.Millisecond
	DefaultMaxBackoff      = 30 * time.Second
)

// Options tunes the live flows. Zero values select the defaults.
type Options struct {
	// BatchSize caps the documents moved per cycle.
	BatchSize int

	// LongpollTimeout is the server-side wait of one pull request.
	LongpollTimeout time.Duration

	// PollInterval bounds how long Push sleeps without a local write.
	PollInterval time.Duration

	// InitialBackoff and MaxBackoff shape the retry delay after a failed
	// cycle. Retries never give up.
	InitialBackoff time.Duration
	MaxBackoff     time.Duration

	// Logger receives flow transitions and swallowed errors.
	Logger *slog.Logger
}

func (o Options) withDefaults() Options {
	if o.BatchSize <= 0 {
		o.BatchSize = DefaultBatchSize
	}
	if o.LongpollTimeout <= 0 {
		o.LongpollTimeout = DefaultLongpollTimeout
	}
	if o.PollInterval <= 0 {
		o.PollInterval = DefaultPollInterval
	}
	if o.InitialBackoff <= 0 {
		o.InitialBackoff = DefaultInitialBackoff
	}
	if o.MaxBackoff <= 0 {
		o.MaxBackoff = DefaultMaxBackoff
	}
	if o.MaxBackoff < o.InitialBackoff {
		o.MaxBackoff = o.InitialBackoff
	}
	if o.Logger == nil {
		o.Logger = slog.Default()
	}
	return o
}

// newBackOff returns an exponential policy that never stops retrying.
func (o Options) newBackOff() *backoff.ExponentialBackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = o.InitialBackoff
	b.MaxInterval = o.MaxBackoff
	b.MaxElapsedTime = 0
	b.Reset()
	return b
}
