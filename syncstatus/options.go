package syncstatus

import (
	"time"

	"github.com/Seann-Moser/integrations/lock"
	"go.uber.org/zap"
)

// DefaultRequestTimeout is how long a pending or running request blocks new
// triggers. A worker that died mid-sync stops blocking after this.
const DefaultRequestTimeout = 30 * time.Minute

type options struct {
	now            func() time.Time
	log            *zap.Logger
	locker         lock.Locker
	requestTimeout time.Duration
}

type Option func(*options)

func WithClock(now func() time.Time) Option {
	return func(o *options) { o.now = now }
}

func WithLogger(l *zap.Logger) Option {
	return func(o *options) { o.log = l }
}

// WithLocker makes the in-progress check atomic across instances.
func WithLocker(l lock.Locker) Option {
	return func(o *options) { o.locker = l }
}

func WithRequestTimeout(d time.Duration) Option {
	return func(o *options) { o.requestTimeout = d }
}

func buildOptions(opts []Option) options {
	o := options{now: time.Now, requestTimeout: DefaultRequestTimeout}
	for _, fn := range opts {
		fn(&o)
	}
	if o.log == nil {
		o.log = zap.NewNop()
	}
	if o.locker == nil {
		o.locker = lock.NewMemoryLocker()
	}
	return o
}
