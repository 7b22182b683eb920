package runloop

import (
	"sync"
	"time"
)

// SourceKind distinguishes the three Source variants. Go has no vtables in
// the teacher's idiom for this engine's domain objects; a tag plus
// per-variant fields on one struct stands in for the original's
// dynamic-dispatch class hierarchy.
type SourceKind int

const (
	SourceCustom SourceKind = iota
	SourceDescriptor
	SourceTimer
)

func (k SourceKind) String() string {
	switch k {
	case SourceCustom:
		return "custom"
	case SourceDescriptor:
		return "descriptor"
	case SourceTimer:
		return "timer"
	default:
		return "unknown"
	}
}

// Delegate holds the optional callouts a Source invokes: Schedule/Cancel
// fire when the source is added to or removed from a (loop, mode) pair;
// Perform is the dispatch callout. Info is opaque user data, retained for
// the lifetime of the source the way the original's user-info struct is
// retained by the delegate record.
type Delegate struct {
	Schedule func(rl *RunLoop, mode string)
	Cancel   func(rl *RunLoop, mode string)
	Perform  func()
	Info     any
}

// Source is a uniform handle over the custom, descriptor, and timer
// variants. Exactly one run-loop may own a source at a time; membership in
// modes of that loop is recorded both in each Mode's sets and in the
// source's own modes field (used by Cancel to remove it everywhere).
type Source struct {
	mu sync.Mutex

	kind        SourceKind
	initialized bool
	valid       bool
	signaled    bool

	runLoop *RunLoop
	modes   map[string]struct{} // mode names this source is currently scheduled in

	delegate Delegate
	priority int32 // custom, descriptor only

	// descriptor
	fd int

	// timer
	fireTime time.Time
	period   time.Duration
	leeway   time.Duration
}

// NewCustomSource creates a custom source. It is initialized only if
// delegate has a non-nil Perform; otherwise SetDelegate with one is required
// before Activate succeeds. Custom sources carry no per-source timeout hint.
func NewCustomSource(priority int32, delegate Delegate) *Source {
	s := &Source{
		kind:     SourceCustom,
		priority: priority,
		delegate: delegate,
		modes:    make(map[string]struct{}),
	}
	s.initialized = delegate.Perform != nil
	return s
}

// NewDescriptorSource creates a source bound to an OS file descriptor.
func NewDescriptorSource(fd int, priority int32, delegate Delegate) *Source {
	s := &Source{
		kind:     SourceDescriptor,
		fd:       fd,
		priority: priority,
		delegate: delegate,
		modes:    make(map[string]struct{}),
	}
	s.initialized = delegate.Perform != nil && fd >= 0
	return s
}

// NewTimerSource creates a timer firing delay after this call (the fire
// time is fixed here, not at Activate or AddSource), and every
// period thereafter (period<=0 means one-shot). leeway is advisory coalescing
// slack, carried but not yet used by the wait backend's sleep computation.
func NewTimerSource(delay, period, leeway time.Duration, perform func()) *Source {
	s := &Source{
		kind:     SourceTimer,
		period:   period,
		leeway:   leeway,
		delegate: Delegate{Perform: perform},
		modes:    make(map[string]struct{}),
	}
	s.fireTime = time.Now().Add(delay)
	s.initialized = perform != nil
	return s
}

// SetDelegate replaces the source's delegate. Valid for any variant.
func (s *Source) SetDelegate(d Delegate) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.delegate = d
	s.initialized = d.Perform != nil && (s.kind != SourceDescriptor || s.fd >= 0)
}

// SetDescriptor rebinds a descriptor source to a new fd. Returns
// WrongVariantError for non-descriptor sources.
func (s *Source) SetDescriptor(fd int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.kind != SourceDescriptor {
		return &WrongVariantError{Operation: "set_descriptor", Have: s.kind, Want: SourceDescriptor}
	}
	s.fd = fd
	s.initialized = s.delegate.Perform != nil && fd >= 0
	return nil
}

// SetTimer reconfigures a timer source's schedule. Returns WrongVariantError
// for non-timer sources.
func (s *Source) SetTimer(delay, period, leeway time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.kind != SourceTimer {
		return &WrongVariantError{Operation: "set_timer", Have: s.kind, Want: SourceTimer}
	}
	s.fireTime = time.Now().Add(delay)
	s.period = period
	s.leeway = leeway
	s.initialized = s.delegate.Perform != nil
	return nil
}

// Activate sets valid=true. Only an initialized source may be activated.
func (s *Source) Activate() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.initialized {
		return &InvalidSourceError{Cause: ErrSourceUninitialized, Message: "runloop: cannot activate an uninitialized source"}
	}
	s.valid = true
	return nil
}

// Deactivate clears valid without detaching the source from its loop/modes;
// this differs from Cancel, which also removes the source from every mode
// of its loop.
func (s *Source) Deactivate() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.valid = false
}

// Signal marks the source as having work pending. Legal on any variant and
// from any goroutine; on custom sources this is the cross-goroutine
// notification primitive. No-op if the source is not valid.
func (s *Source) Signal() {
	s.mu.Lock()
	if !s.valid {
		s.mu.Unlock()
		return
	}
	s.signaled = true
	rl := s.runLoop
	s.mu.Unlock()
	if rl != nil {
		rl.WakeUp()
	}
}

// IsValid reports the source's current validity flag.
func (s *Source) IsValid() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.valid
}

// Priority returns the source's dispatch priority. Meaningful for custom and
// descriptor variants only; always 0 for timers (ordered by fire-time
// instead).
func (s *Source) Priority() int32 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.priority
}

// SetPriority updates the source's dispatch priority. Returns
// WrongVariantError for timer sources.
func (s *Source) SetPriority(p int32) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.kind == SourceTimer {
		return &WrongVariantError{Operation: "set_priority", Have: s.kind, Want: SourceCustom}
	}
	s.priority = p
	return nil
}

// RunLoop returns the run-loop this source is currently bound to, or nil.
func (s *Source) RunLoop() *RunLoop {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.runLoop
}

// Cancel invalidates the source and removes it from every mode of its
// owning loop (if any), invoking each mode's cancel hook. Idempotent: a
// second call is a no-op, matching the engine's cancellation contract.
func (s *Source) Cancel() {
	s.mu.Lock()
	if !s.valid && s.runLoop == nil {
		s.mu.Unlock()
		return
	}
	s.valid = false
	rl := s.runLoop
	var modeNames []string
	for name := range s.modes {
		modeNames = append(modeNames, name)
	}
	s.mu.Unlock()

	if rl == nil {
		return
	}
	for _, name := range modeNames {
		rl.RemoveSource(s, name)
	}
}
