package runloop

import "github.com/joeycumines/logiface"

// runLoopOptions holds configuration resolved from RunLoopOption values at
// construction time.
type runLoopOptions struct {
	logger         *logiface.Logger[logiface.Event]
	metricsEnabled bool
	maxWaitObjects int
	fairnessBudget int
}

const (
	defaultMaxWaitObjects = 64
	defaultFairnessBudget = 32
)

// RunLoopOption configures a RunLoop instance, in the manner of the
// teacher's LoopOption (options.go).
type RunLoopOption interface {
	applyRunLoop(*runLoopOptions)
}

type runLoopOptionFunc func(*runLoopOptions)

func (f runLoopOptionFunc) applyRunLoop(o *runLoopOptions) { f(o) }

// WithLogger attaches a structured logger. When unset, a no-op logger is
// used so the hot path never allocates for disabled logging.
func WithLogger(logger *logiface.Logger[logiface.Event]) RunLoopOption {
	return runLoopOptionFunc(func(o *runLoopOptions) {
		o.logger = logger
	})
}

// WithMetrics enables dispatch-count and dispatch-latency tracking via
// RunLoop.Metrics. Queue depth is not tracked.
func WithMetrics(enabled bool) RunLoopOption {
	return runLoopOptionFunc(func(o *runLoopOptions) {
		o.metricsEnabled = enabled
	})
}

// WithMaxWaitObjects overrides the platform wait-object cap enforced per
// mode (§4.3's "at least MAXIMUM_WAIT_OBJECTS-equivalent support").
func WithMaxWaitObjects(n int) RunLoopOption {
	return runLoopOptionFunc(func(o *runLoopOptions) {
		if n > 0 {
			o.maxWaitObjects = n
		}
	})
}

// WithFairnessBudget overrides the message-port server's per-callout drain
// budget (default 32, per spec §4.4).
func WithFairnessBudget(n int) RunLoopOption {
	return runLoopOptionFunc(func(o *runLoopOptions) {
		if n > 0 {
			o.fairnessBudget = n
		}
	})
}

func resolveRunLoopOptions(opts []RunLoopOption) *runLoopOptions {
	cfg := &runLoopOptions{
		maxWaitObjects: defaultMaxWaitObjects,
		fairnessBudget: defaultFairnessBudget,
	}
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		opt.applyRunLoop(cfg)
	}
	return cfg
}
