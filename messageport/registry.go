package messageport

import "sync"

// serverRegistry is the process-wide name -> Server map (spec §3 "Server
// registry", §9 "Global mutable state"): a single lazily-populated map
// guarded by its own lock, never held while invoking a user callback.
var serverRegistry = struct {
	mu      sync.Mutex
	servers map[string]*Server
}{servers: make(map[string]*Server)}

func lookupServer(name string) (*Server, bool) {
	serverRegistry.mu.Lock()
	defer serverRegistry.mu.Unlock()
	s, ok := serverRegistry.servers[name]
	return s, ok
}
