package messageport

import (
	"sync"

	"github.com/joeycumines/go-corerunloop"
)

// fairnessDrainLimit is the per-callout drain bound a server's backing
// source falls back to when its run-loop reports no positive
// FairnessBudget (spec §4.4 "Fairness").
const fairnessDrainLimit = 32

// Callback is a server port's request handler: given the public message id
// and payload, it returns the reply blob (ignored if the request did not
// expect one).
type Callback func(msgID int32, payload []byte) []byte

// Server is a named inbound message queue, built on a runloop.Source and
// scheduled onto exactly one RunLoop (spec §3 "Message-port entities").
type Server struct {
	mu       sync.Mutex
	name     string
	userInfo any
	callback Callback
	valid    bool
	pending  pendingQueue
	source   *runloop.Source
	rl       *runloop.RunLoop
	mode     string

	blockedMu sync.Mutex
	blocked   map[*Client]struct{}
}

// CreateServer does an atomic check-or-insert into the process-wide server
// registry (spec §4.4 "Server creation"): on a name hit, the existing
// server is returned regardless of the callback/userInfo supplied here.
func CreateServer(name string, callback Callback, userInfo any) *Server {
	serverRegistry.mu.Lock()
	defer serverRegistry.mu.Unlock()
	if s, ok := serverRegistry.servers[name]; ok {
		return s
	}
	s := &Server{
		name:     name,
		callback: callback,
		userInfo: userInfo,
		valid:    true,
	}
	serverRegistry.servers[name] = s
	return s
}

// Name returns the server's registry key.
func (s *Server) Name() string { return s.name }

// UserInfo returns the opaque user data supplied at creation.
func (s *Server) UserInfo() any { return s.userInfo }

// IsValid reports whether the server has not been invalidated.
func (s *Server) IsValid() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.valid
}

// ScheduleInRunLoop lazily builds the server's backing custom source and
// schedules it on rl under mode (spec §4.4 "Schedule on loop"). A server
// may only be scheduled once; subsequent calls are no-ops, matching the
// original's single backing-source lifetime.
func (s *Server) ScheduleInRunLoop(rl *runloop.RunLoop, mode string) error {
	s.mu.Lock()
	if s.source != nil {
		s.mu.Unlock()
		return nil
	}
	src := runloop.NewCustomSource(0, runloop.Delegate{Perform: s.drain, Info: s})
	if err := src.Activate(); err != nil {
		s.mu.Unlock()
		return err
	}
	s.source = src
	s.rl = rl
	s.mode = mode
	s.mu.Unlock()

	return rl.AddSource(src, mode)
}

// drain is the server source's perform callout: it pops up to the owning
// run-loop's FairnessBudget messages (fairnessDrainLimit if that is not
// positive), invokes the callback for each, sends replies
// where expected, and re-signals itself if messages remain so the loop can
// service other sources/timers before the next drain (spec §4.4
// "Fairness").
func (s *Server) drain() {
	var batch []*Message
	s.mu.Lock()
	limit := fairnessDrainLimit
	if s.rl != nil {
		if b := s.rl.FairnessBudget(); b > 0 {
			limit = b
		}
	}
	for i := 0; i < limit; i++ {
		msg, ok := s.pending.pop()
		if !ok {
			break
		}
		batch = append(batch, msg)
	}
	more := s.pending.len() > 0
	cb := s.callback
	src := s.source
	s.mu.Unlock()

	for _, msg := range batch {
		var reply []byte
		if cb != nil {
			reply = cb(msg.msgID, msg.payload)
		}
		if msg.replyExpected {
			sendReply(msg.sender, msg.privateID, reply)
		}
	}

	if more && src != nil {
		src.Signal()
	}
}

// enqueue appends msg to the server's pending queue, signaling and waking
// the backing source if the queue was empty (spec §4.4 "Send request", step
// 4).
func (s *Server) enqueue(msg *Message) error {
	s.mu.Lock()
	if !s.valid {
		s.mu.Unlock()
		return ErrServerInvalid
	}
	wasEmpty := s.pending.len() == 0
	s.pending.push(msg)
	src := s.source
	s.mu.Unlock()

	if wasEmpty && src != nil {
		src.Signal()
	}
	return nil
}

// Invalidate marks the server invalid, cancels its backing source, removes
// it from the registry, and wakes every client currently blocked in
// SendRequest against it so they observe ResultTransportError on their next
// run-loop wake (spec §9 supplemented feature, grounded on
// original_source/src/CoreMessagePort.c's invalidate path).
func (s *Server) Invalidate() {
	s.mu.Lock()
	if !s.valid {
		s.mu.Unlock()
		return
	}
	s.valid = false
	src := s.source
	name := s.name
	s.mu.Unlock()

	if src != nil {
		src.Cancel()
	}

	serverRegistry.mu.Lock()
	if serverRegistry.servers[name] == s {
		delete(serverRegistry.servers, name)
	}
	serverRegistry.mu.Unlock()

	s.blockedMu.Lock()
	clients := make([]*Client, 0, len(s.blocked))
	for c := range s.blocked {
		clients = append(clients, c)
	}
	s.blockedMu.Unlock()

	for _, c := range clients {
		c.wakeForInvalidation()
	}
}

func (s *Server) registerBlocked(c *Client) {
	s.blockedMu.Lock()
	if s.blocked == nil {
		s.blocked = make(map[*Client]struct{})
	}
	s.blocked[c] = struct{}{}
	s.blockedMu.Unlock()
}

func (s *Server) unregisterBlocked(c *Client) {
	s.blockedMu.Lock()
	delete(s.blocked, c)
	s.blockedMu.Unlock()
}
