package runloop

import "sync"

// Observer is a non-dispatch callback invoked at defined points of a
// run-loop iteration. It fires only while valid and only when its
// Activities mask intersects the activity currently being announced.
type Observer struct {
	mu sync.Mutex

	activities Activity
	priority   int32
	callback   func(o *Observer, activity Activity)
	info       any
	valid      bool

	modes map[string]struct{}
}

// NewObserver creates an observer firing for any activity in activities, in
// ascending-priority order relative to other observers of the same
// activity. info is retained and passed back to the caller via Info.
func NewObserver(activities Activity, priority int32, callback func(o *Observer, activity Activity), info any) *Observer {
	return &Observer{
		activities: activities,
		priority:   priority,
		callback:   callback,
		info:       info,
		valid:      true,
		modes:      make(map[string]struct{}),
	}
}

// Info returns the opaque user data supplied at construction.
func (o *Observer) Info() any {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.info
}

// IsValid reports whether the observer still fires.
func (o *Observer) IsValid() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.valid
}

// Priority returns the observer's firing priority.
func (o *Observer) Priority() int32 {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.priority
}

// Cancel invalidates the observer so it no longer fires. It does not remove
// the observer from the modes it was added to; RemoveObserver does that.
// Idempotent.
func (o *Observer) Cancel() {
	o.mu.Lock()
	if !o.valid {
		o.mu.Unlock()
		return
	}
	o.valid = false
	o.mu.Unlock()
}

func (o *Observer) fires(activity Activity) (func(*Observer, Activity), bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if !o.valid || o.activities&activity == 0 {
		return nil, false
	}
	return o.callback, true
}
