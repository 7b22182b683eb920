package runloop

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/joeycumines/logiface"
)

// Forever, passed as RunInModes' timeout, means block indefinitely (no
// deadline). A timeout of 0 means poll once without sleeping.
const Forever time.Duration = -1

// wakeHandle is the run-loop's self-wakeup primitive: a socketpair on
// POSIX, a manual-reset event on Windows (spec §4.2 "Stop and wake").
type wakeHandle interface {
	wake() error
	drain()
	close() error
}

// noopWakeHandle is the degraded fallback RunLoop.New uses when the
// platform self-wake handle fails to construct; every wake/drain/close is a
// no-op. The wait step then returns only for a ready descriptor, a due
// timer, or the run's deadline: WakeUp, Stop and Signal do not interrupt a
// wait that is already in progress.
type noopWakeHandle struct{}

func (noopWakeHandle) wake() error  { return nil }
func (noopWakeHandle) drain()       {}
func (noopWakeHandle) close() error { return nil }

// waitOutcomeKind classifies the platform wait backend's result (spec
// §4.3's abstract contract).
type waitOutcomeKind int

const (
	waitTimeout waitOutcomeKind = iota
	waitWoken
	waitDescriptorReady
	waitError
)

type waitOutcome struct {
	kind   waitOutcomeKind
	source *Source
	err    error
}

// RunLoop is the reactor engine: a set of named Modes, a self-wake handle,
// state bits, and the owner-goroutine bookkeeping that lets exactly one
// goroutine execute its run algorithm at a time while permitting that same
// goroutine to re-enter (the message port's reply wait does this).
type RunLoop struct {
	mu    sync.Mutex
	modes map[string]*Mode

	currentModeNames map[string]struct{}

	state          runLoopState
	ownerGoroutine uint64
	reentrancyDepth int

	wake wakeHandle

	opts    *runLoopOptions
	logger  *logiface.Logger[logiface.Event]
	metrics *Metrics

	closeOnce sync.Once
}

// New constructs a standalone RunLoop. Most callers should prefer Current,
// which lazily associates one RunLoop per goroutine; New is for callers
// that want explicit lifetime control (e.g. a dedicated worker goroutine
// pool where Current's never-torn-down registry entry would leak).
func New(opts ...RunLoopOption) *RunLoop {
	cfg := resolveRunLoopOptions(opts)
	rl := &RunLoop{
		modes:  make(map[string]*Mode),
		opts:   cfg,
		logger: cfg.logger,
	}
	var err error
	rl.wake, err = newWakeHandle()
	if err != nil {
		// The self-wake handle is foundational; without it the loop can
		// never be woken from another goroutine. Surface the failure by
		// logging and falling back to a handle whose operations are all
		// no-ops, rather than panicking the caller's goroutine.
		rl.logger.Err().Err(err).Log("failed to create self-wake handle")
		rl.wake = noopWakeHandle{}
	}
	if cfg.metricsEnabled {
		rl.metrics = newMetrics()
	}
	return rl
}

// Close releases the run-loop's platform resources (self-wake handle, every
// mode's descriptor aggregator). A RunLoop must not be used after Close.
func (rl *RunLoop) Close() error {
	var firstErr error
	rl.closeOnce.Do(func() {
		rl.mu.Lock()
		modes := make([]*Mode, 0, len(rl.modes))
		for _, m := range rl.modes {
			modes = append(modes, m)
		}
		rl.mu.Unlock()

		for _, m := range modes {
			m.mu.Lock()
			if m.agg != nil {
				if err := m.agg.close(); err != nil && firstErr == nil {
					firstErr = err
				}
				m.agg = nil
			}
			m.mu.Unlock()
		}
		if err := rl.wake.close(); err != nil && firstErr == nil {
			firstErr = err
		}
	})
	return firstErr
}

// Metrics returns the run-loop's metrics collector, or nil if WithMetrics
// was not supplied.
func (rl *RunLoop) Metrics() *Metrics { return rl.metrics }

// FairnessBudget returns the per-callout drain budget configured via
// WithFairnessBudget (default 32), consumed by the messageport package's
// server source (spec §4.4 "Fairness").
func (rl *RunLoop) FairnessBudget() int { return rl.opts.fairnessBudget }

func (rl *RunLoop) getOrCreateMode(name string) *Mode {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	m, ok := rl.modes[name]
	if !ok {
		m = newMode(name)
		rl.modes[name] = m
	}
	return m
}

// GetCopyOfModes returns the names of every mode this loop has created,
// regardless of whether it is currently running in them.
func (rl *RunLoop) GetCopyOfModes() []string {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	out := make([]string, 0, len(rl.modes))
	for name := range rl.modes {
		out = append(out, name)
	}
	return out
}

// GetCurrentModeName returns the mode name the calling goroutine's run is
// executing in, or "" if not running. When RunInModes was given more than
// one mode name (this engine's flat concurrent-mode-set realization, spec
// §9), the names are joined with "+"; callers that need the precise set
// should inspect the slice they passed to RunInModes instead.
func (rl *RunLoop) GetCurrentModeName() string {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	if len(rl.currentModeNames) == 0 {
		return ""
	}
	names := make([]string, 0, len(rl.currentModeNames))
	for n := range rl.currentModeNames {
		names = append(names, n)
	}
	sort.Strings(names)
	out := names[0]
	for _, n := range names[1:] {
		out += "+" + n
	}
	return out
}

// AddSource schedules src into the named mode, creating the mode if needed.
// Invokes src's Schedule delegate callout and, for descriptor sources,
// registers the fd with the mode's aggregator.
func (rl *RunLoop) AddSource(src *Source, modeName string) error {
	if src == nil {
		return &InvalidSourceError{Message: "runloop: add_source requires a non-nil source"}
	}
	m := rl.getOrCreateMode(modeName)

	src.mu.Lock()
	if src.runLoop != nil && src.runLoop != rl {
		src.mu.Unlock()
		return &InvalidSourceError{Message: "runloop: source already bound to a different run loop"}
	}
	src.runLoop = rl
	src.modes[modeName] = struct{}{}
	kind := src.kind
	fd := src.fd
	cb := src.delegate.Schedule
	src.mu.Unlock()

	m.mu.Lock()
	var added bool
	if kind == SourceTimer {
		added = m.timers.Add(src)
	} else {
		added = m.sources.Add(src)
	}
	var aggErr error
	if added && kind == SourceDescriptor {
		if m.agg == nil {
			m.agg, aggErr = newAggregator()
		}
		if aggErr == nil && m.agg != nil {
			if m.agg.count() >= rl.opts.maxWaitObjects {
				aggErr = ErrWaitObjectLimit
			} else {
				aggErr = m.agg.add(fd, src)
			}
		}
	}
	m.mu.Unlock()

	if aggErr != nil {
		rl.logger.Err().Err(aggErr).Str("mode", modeName).Log("failed to register descriptor source")
		return aggErr
	}
	if cb != nil {
		cb(rl, modeName)
	}
	rl.wakeIfRelevant(src)
	return nil
}

// wakeIfRelevant wakes the loop if src's addition could change the next
// wait decision. Per spec §4.2 "Add/remove under concurrency", always
// waking is a correct (if slightly wasteful) implementation; liveness, not
// minimal wakeups, is the invariant.
func (rl *RunLoop) wakeIfRelevant(src *Source) {
	rl.WakeUp()
}

// RemoveSource removes src from the named mode, invoking its Cancel
// delegate callout and deregistering its descriptor from the mode's
// aggregator. Idempotent: removing an absent source is a no-op.
func (rl *RunLoop) RemoveSource(src *Source, modeName string) error {
	if src == nil {
		return &InvalidSourceError{Message: "runloop: remove_source requires a non-nil source"}
	}
	rl.mu.Lock()
	m, ok := rl.modes[modeName]
	rl.mu.Unlock()
	if !ok {
		return nil
	}

	src.mu.Lock()
	kind := src.kind
	fd := src.fd
	src.mu.Unlock()

	m.mu.Lock()
	var removed bool
	if kind == SourceTimer {
		removed = m.timers.Remove(src)
	} else {
		removed = m.sources.Remove(src)
	}
	if removed && kind == SourceDescriptor && m.agg != nil {
		_ = m.agg.remove(fd)
		if m.agg.count() == 0 {
			_ = m.agg.close()
			m.agg = nil
		}
	}
	m.mu.Unlock()

	if !removed {
		return nil
	}

	src.mu.Lock()
	delete(src.modes, modeName)
	stillBound := len(src.modes) > 0
	cb := src.delegate.Cancel
	if !stillBound {
		src.runLoop = nil
	}
	src.mu.Unlock()

	if cb != nil {
		cb(rl, modeName)
	}
	return nil
}

// ContainsSource reports whether src is currently scheduled in modeName on
// this loop.
func (rl *RunLoop) ContainsSource(src *Source, modeName string) bool {
	rl.mu.Lock()
	m, ok := rl.modes[modeName]
	rl.mu.Unlock()
	if !ok || src == nil {
		return false
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if src.kind == SourceTimer {
		return m.timers.Contains(src)
	}
	return m.sources.Contains(src)
}

// AddObserver schedules obs into the named mode.
func (rl *RunLoop) AddObserver(obs *Observer, modeName string) error {
	if obs == nil {
		return &InvalidSourceError{Message: "runloop: add_observer requires a non-nil observer"}
	}
	m := rl.getOrCreateMode(modeName)
	m.mu.Lock()
	m.observers.Add(obs)
	m.recomputeObserverMaskLocked()
	m.mu.Unlock()
	obs.mu.Lock()
	obs.modes[modeName] = struct{}{}
	obs.mu.Unlock()
	return nil
}

// RemoveObserver removes obs from the named mode.
func (rl *RunLoop) RemoveObserver(obs *Observer, modeName string) error {
	if obs == nil {
		return &InvalidSourceError{Message: "runloop: remove_observer requires a non-nil observer"}
	}
	rl.mu.Lock()
	m, ok := rl.modes[modeName]
	rl.mu.Unlock()
	if !ok {
		return nil
	}
	m.mu.Lock()
	m.observers.Remove(obs)
	m.recomputeObserverMaskLocked()
	m.mu.Unlock()
	obs.mu.Lock()
	delete(obs.modes, modeName)
	obs.mu.Unlock()
	return nil
}

// WakeUp forces the loop out of its wait step without setting stopped.
// Safe from any goroutine.
func (rl *RunLoop) WakeUp() {
	if err := rl.wake.wake(); err != nil {
		rl.logger.Debug().Err(err).Log("wake-up poke failed")
	}
}

// Stop asynchronously requests that the loop exit at its next exit-check
// boundary. Safe from any goroutine.
func (rl *RunLoop) Stop() {
	rl.state.set(stateStopped)
	rl.WakeUp()
}

// Run executes the default mode until Stopped or Finished.
func (rl *RunLoop) Run() (Result, error) {
	return rl.RunInModes([]string{DefaultMode}, Forever, false)
}

// RunInModes is the reactor's core algorithm (spec §4.2). It runs until one
// of four outcomes: SourceHandled (only when returnAfterHandle and a custom
// source ran this iteration), TimedOut (timeout elapsed), Stopped (Stop was
// called), or Finished (every current mode has no sources or timers left).
func (rl *RunLoop) RunInModes(modeNames []string, timeout time.Duration, returnAfterHandle bool) (Result, error) {
	if len(modeNames) == 0 {
		return 0, ErrNoModes
	}

	gid := goroutineID()
	rl.mu.Lock()
	if rl.ownerGoroutine != 0 && rl.ownerGoroutine != gid {
		rl.mu.Unlock()
		return 0, ErrLoopAlreadyRunning
	}
	if rl.ownerGoroutine == 0 {
		rl.ownerGoroutine = gid
	}
	rl.reentrancyDepth++

	modes := make([]*Mode, 0, len(modeNames))
	for _, name := range modeNames {
		if _, ok := rl.modes[name]; !ok {
			rl.modes[name] = newMode(name)
		}
		modes = append(modes, rl.modes[name])
	}
	prevCurrent := rl.currentModeNames
	rl.currentModeNames = make(map[string]struct{}, len(modeNames))
	for _, name := range modeNames {
		rl.currentModeNames[name] = struct{}{}
	}
	rl.mu.Unlock()

	defer func() {
		rl.mu.Lock()
		rl.reentrancyDepth--
		if rl.reentrancyDepth == 0 {
			rl.ownerGoroutine = 0
		}
		rl.currentModeNames = prevCurrent
		rl.mu.Unlock()
	}()

	var deadline time.Time
	if timeout >= 0 {
		deadline = time.Now().Add(timeout)
	}

	rl.fireObservers(modes, ActivityEntry)

	var result Result
	poll := false
	for {
		if rl.state.testAndClear(stateStopped) {
			result = ResultStopped
			break
		}

		rl.fireObservers(modes, ActivityBeforeSources)
		handled := rl.dispatchCustomSources(modes)
		if handled && returnAfterHandle {
			poll = true
		}

		if !poll {
			rl.fireObservers(modes, ActivityBeforeWaiting)
		}
		rl.state.set(stateSleeping)

		sleep := rl.computeSleep(modes, deadline, poll)
		outcome := rl.wait(modes, sleep)
		rl.state.clear(stateSleeping)
		rl.fireObservers(modes, ActivityAfterWaiting)

		switch outcome.kind {
		case waitDescriptorReady:
			rl.dispatchDescriptor(outcome.source)
		case waitError:
			rl.logger.Err().Err(outcome.err).Log("wait backend error")
		}

		rl.fireObservers(modes, ActivityBeforeTimers)
		rl.dispatchTimers(modes)
		poll = false

		switch {
		case rl.state.testAndClear(stateStopped):
			result = ResultStopped
		case handled && returnAfterHandle:
			result = ResultSourceHandled
		case !deadline.IsZero() && !time.Now().Before(deadline):
			result = ResultTimedOut
		case allModesEmpty(modes):
			result = ResultFinished
		default:
			continue
		}
		break
	}

	rl.fireObservers(modes, ActivityExit)
	return result, nil
}

func allModesEmpty(modes []*Mode) bool {
	for _, m := range modes {
		if !m.empty() {
			return false
		}
	}
	return true
}

// fireObservers invokes every valid observer across modes whose mask
// intersects activity, in ascending priority order.
func (rl *RunLoop) fireObservers(modes []*Mode, activity Activity) {
	var candidates []*Observer
	for _, m := range modes {
		m.mu.Lock()
		if m.observerMask&activity != 0 {
			candidates = append(candidates, m.observers.Items()...)
		}
		m.mu.Unlock()
	}
	if len(candidates) == 0 {
		return
	}
	type firing struct {
		o  *Observer
		cb func(*Observer, Activity)
	}
	var toFire []firing
	for _, o := range candidates {
		if cb, ok := o.fires(activity); ok {
			toFire = append(toFire, firing{o, cb})
		}
	}
	sort.SliceStable(toFire, func(i, j int) bool {
		return toFire[i].o.Priority() < toFire[j].o.Priority()
	})
	for _, f := range toFire {
		rl.safeInvoke(func() { f.cb(f.o, activity) })
	}
}

// dispatchCustomSources fires valid+signaled custom sources across modes,
// ascending priority, stable on ties (spec §4.2.a). Returns whether at
// least one source ran.
func (rl *RunLoop) dispatchCustomSources(modes []*Mode) bool {
	var candidates []*Source
	for _, m := range modes {
		m.mu.Lock()
		for _, s := range m.sources.Items() {
			if s.kind == SourceCustom {
				candidates = append(candidates, s)
			}
		}
		m.mu.Unlock()
	}

	var selected []*Source
	for _, s := range candidates {
		s.mu.Lock()
		if s.valid && s.signaled {
			s.signaled = false
			selected = append(selected, s)
		}
		s.mu.Unlock()
	}
	if len(selected) == 0 {
		return false
	}
	sort.SliceStable(selected, func(i, j int) bool {
		return selected[i].Priority() < selected[j].Priority()
	})

	for _, s := range selected {
		start := time.Now()
		s.mu.Lock()
		cb := s.delegate.Perform
		s.mu.Unlock()
		rl.safeInvoke(cb)
		if rl.metrics != nil {
			rl.metrics.observeDispatch(time.Since(start))
		}
	}
	return true
}

// dispatchDescriptor invokes src's Perform callout once, for the descriptor
// the platform wait reported ready (spec §4.2.f).
func (rl *RunLoop) dispatchDescriptor(src *Source) {
	if src == nil {
		return
	}
	src.mu.Lock()
	valid := src.valid
	cb := src.delegate.Perform
	src.mu.Unlock()
	if !valid {
		return
	}
	start := time.Now()
	rl.safeInvoke(cb)
	if rl.metrics != nil {
		rl.metrics.observeDispatch(time.Since(start))
	}
}

// dispatchTimers fires due, valid timers across modes, ascending
// fire-time, then reschedules periodic ones by whole-period multiples
// (scheduled-drift policy, spec §4.2.g).
func (rl *RunLoop) dispatchTimers(modes []*Mode) {
	now := time.Now()

	var candidates []*Source
	for _, m := range modes {
		m.mu.Lock()
		candidates = append(candidates, m.timers.Items()...)
		m.mu.Unlock()
	}

	var due []*Source
	for _, s := range candidates {
		s.mu.Lock()
		if s.valid && !s.fireTime.After(now) {
			due = append(due, s)
		}
		s.mu.Unlock()
	}
	if len(due) == 0 {
		return
	}
	sort.SliceStable(due, func(i, j int) bool {
		return due[i].fireTime.Before(due[j].fireTime)
	})

	for _, s := range due {
		s.mu.Lock()
		s.signaled = false
		cb := s.delegate.Perform
		period := s.period
		s.mu.Unlock()

		start := time.Now()
		rl.safeInvoke(cb)
		if rl.metrics != nil {
			rl.metrics.observeDispatch(time.Since(start))
		}

		var oneShot bool
		s.mu.Lock()
		if period <= 0 {
			s.valid = false
			oneShot = true
		} else {
			next := s.fireTime
			for !next.After(now) {
				next = next.Add(period)
			}
			s.fireTime = next
		}
		s.mu.Unlock()

		if oneShot {
			s.Cancel()
		}
	}
}

// computeSleep is the min(deadline, earliest timer fire-time) clamp of
// spec §4.2.c. poll forces a zero-duration, non-blocking wait.
func (rl *RunLoop) computeSleep(modes []*Mode, deadline time.Time, poll bool) time.Duration {
	if poll {
		return 0
	}
	now := time.Now()
	haveDeadline := !deadline.IsZero()
	sleep := time.Duration(-1)
	if haveDeadline {
		sleep = deadline.Sub(now)
	}
	haveTimer := false
	if earliest, ok := earliestTimer(modes); ok {
		haveTimer = true
		untilTimer := earliest.Sub(now)
		if !haveDeadline || untilTimer < sleep {
			sleep = untilTimer
		}
	}
	if !haveDeadline && !haveTimer {
		return Forever
	}
	if sleep < 0 {
		return 0
	}
	return sleep
}

func earliestTimer(modes []*Mode) (time.Time, bool) {
	var earliest time.Time
	found := false
	for _, m := range modes {
		m.mu.Lock()
		for _, s := range m.timers.Items() {
			s.mu.Lock()
			if s.valid && (!found || s.fireTime.Before(earliest)) {
				earliest = s.fireTime
				found = true
			}
			s.mu.Unlock()
		}
		m.mu.Unlock()
	}
	return earliest, found
}

// safeInvoke runs fn with panic recovery, in the manner of the teacher's
// safeExecuteFn (loop.go), logging through the structured logger instead of
// the standard library's log package.
func (rl *RunLoop) safeInvoke(fn func()) {
	if fn == nil {
		return
	}
	defer func() {
		if r := recover(); r != nil {
			rl.logger.Crit().Str("panic", fmt.Sprint(r)).Log("callout panicked")
		}
	}()
	fn()
}
