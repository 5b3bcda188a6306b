package runloop

import (
	"time"

	"github.com/dshills/runloop/internal/fatal"
	"github.com/dshills/runloop/internal/logging"
	"github.com/dshills/runloop/internal/msgqueue"
)

// Option configures an EventLoop.
type Option func(*loopConfig)

type loopConfig struct {
	log       *logging.Logger
	rep       *fatal.Reporter
	clock     func() time.Time
	softLimit int
	hardLimit int
}

func defaultLoopConfig() loopConfig {
	return loopConfig{
		log:       logging.Default(),
		rep:       fatal.Default(),
		clock:     time.Now,
		softLimit: msgqueue.DefaultSoftLimit,
		hardLimit: msgqueue.DefaultHardLimit,
	}
}

// WithLogger sets the loop's logger.
func WithLogger(l *logging.Logger) Option {
	return func(c *loopConfig) {
		c.log = l
	}
}

// WithReporter sets the fatal reporter applied to contract violations and
// run-cycle panics.
func WithReporter(r *fatal.Reporter) Option {
	return func(c *loopConfig) {
		c.rep = r
	}
}

// WithClock overrides the loop's time source. Intended for tests.
func WithClock(clock func() time.Time) Option {
	return func(c *loopConfig) {
		c.clock = clock
	}
}

// WithQueueLimits overrides the message-queue backlog thresholds.
func WithQueueLimits(soft, hard int) Option {
	return func(c *loopConfig) {
		c.softLimit = soft
		c.hardLimit = hard
	}
}
