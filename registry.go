package runloop

import (
	"runtime"
	"sync"
)

// goroutineID extracts the calling goroutine's id from its stack trace
// header, in the manner of the teacher's getGoroutineID (loop.go). Go has
// no public goroutine-identity API; this is the same trick the teacher uses
// to recognize its own loop goroutine, repurposed here as the key for the
// thread-local run-loop registry (spec §9 "Global mutable state").
func goroutineID() uint64 {
	var buf [64]byte
	n := runtime.Stack(buf[:], false)
	var id uint64
	for i := len("goroutine "); i < n; i++ {
		if buf[i] >= '0' && buf[i] <= '9' {
			id = id*10 + uint64(buf[i]-'0')
		} else {
			break
		}
	}
	return id
}

// registry is the process-wide goroutine-id → *RunLoop map. Go goroutines
// are not OS threads and carry no TLS slot; this package-level map, keyed by
// the goroutine-ID extraction above, is the closest Go-native analogue of
// the original's per-thread singleton, documented as a deliberate departure
// rather than true thread-local storage.
var registry = struct {
	mu sync.Mutex
	m  map[uint64]*RunLoop
}{m: make(map[uint64]*RunLoop)}

// Current returns the calling goroutine's run-loop, creating one on first
// use. Each goroutine that calls Current gets its own RunLoop; the mapping
// is never torn down automatically (goroutines don't have a destructor), so
// long-lived pools of goroutines that each call Current will accumulate one
// RunLoop per goroutine for the process lifetime — callers managing many
// short-lived goroutines should construct a *RunLoop directly with New and
// avoid Current.
func Current() *RunLoop {
	id := goroutineID()

	registry.mu.Lock()
	rl, ok := registry.m[id]
	registry.mu.Unlock()
	if ok {
		return rl
	}

	rl = New()
	registry.mu.Lock()
	if existing, ok := registry.m[id]; ok {
		registry.mu.Unlock()
		rl.Close()
		return existing
	}
	registry.m[id] = rl
	registry.mu.Unlock()
	return rl
}

// forgetCurrent removes the calling goroutine's entry from the registry, if
// any. Used by tests. Without it, an entry (and the RunLoop it points to)
// stays in the registry after its goroutine exits, as Current describes.
func forgetCurrent() {
	id := goroutineID()
	registry.mu.Lock()
	delete(registry.m, id)
	registry.mu.Unlock()
}
