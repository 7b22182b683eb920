package runloop

import "testing"

func TestResolveRunLoopOptionsDefaults(t *testing.T) {
	cfg := resolveRunLoopOptions(nil)
	if cfg.maxWaitObjects != defaultMaxWaitObjects {
		t.Errorf("maxWaitObjects = %d, want %d", cfg.maxWaitObjects, defaultMaxWaitObjects)
	}
	if cfg.fairnessBudget != defaultFairnessBudget {
		t.Errorf("fairnessBudget = %d, want %d", cfg.fairnessBudget, defaultFairnessBudget)
	}
	if cfg.logger != nil {
		t.Error("logger should default to nil (nil *logiface.Logger is safe to use)")
	}
	if cfg.metricsEnabled {
		t.Error("metrics should default to disabled")
	}
}

func TestResolveRunLoopOptionsOverrides(t *testing.T) {
	cfg := resolveRunLoopOptions([]RunLoopOption{
		WithMaxWaitObjects(8),
		WithFairnessBudget(4),
		WithMetrics(true),
	})
	if cfg.maxWaitObjects != 8 {
		t.Errorf("maxWaitObjects = %d, want 8", cfg.maxWaitObjects)
	}
	if cfg.fairnessBudget != 4 {
		t.Errorf("fairnessBudget = %d, want 4", cfg.fairnessBudget)
	}
	if !cfg.metricsEnabled {
		t.Error("metrics should be enabled")
	}

	// Non-positive overrides are ignored, preserving the default.
	cfg2 := resolveRunLoopOptions([]RunLoopOption{WithMaxWaitObjects(0), WithFairnessBudget(-1)})
	if cfg2.maxWaitObjects != defaultMaxWaitObjects {
		t.Error("non-positive WithMaxWaitObjects must not override the default")
	}
	if cfg2.fairnessBudget != defaultFairnessBudget {
		t.Error("non-positive WithFairnessBudget must not override the default")
	}
}

func TestNewRunLoopWithMetricsEnabled(t *testing.T) {
	rl := New(WithMetrics(true))
	defer rl.Close()
	if rl.Metrics() == nil {
		t.Fatal("Metrics() should be non-nil when WithMetrics(true) is supplied")
	}
	if rl.FairnessBudget() != defaultFairnessBudget {
		t.Errorf("FairnessBudget() = %d, want %d", rl.FairnessBudget(), defaultFairnessBudget)
	}
}
