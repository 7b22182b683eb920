package messageport

import (
	"sync"
	"time"

	"github.com/joeycumines/go-corerunloop"
)

// replySlot holds a pending reply: present once the server's callback
// machinery has written a value via sendReply.
type replySlot struct {
	has  bool
	blob []byte
}

// Client resolves a named server and posts requests to it, optionally
// waiting for a reply via a reply source and a nested run-loop spin (spec
// §3 "Message-port entities").
type Client struct {
	mu      sync.Mutex
	name    string
	server  *Server
	counter int64

	replies     map[int64]*replySlot
	replySource *runloop.Source
}

// CreateClient resolves name against the server registry (a miss is
// retried on the first SendRequest) and initializes an empty replies map
// (spec §4.4 "Client creation").
func CreateClient(name string) *Client {
	c := &Client{name: name, replies: make(map[int64]*replySlot)}
	if s, ok := lookupServer(name); ok {
		c.server = s
	}
	return c
}

// Name returns the client's target server name.
func (c *Client) Name() string { return c.name }

func (c *Client) resolveServer() *Server {
	c.mu.Lock()
	if c.server != nil {
		s := c.server
		c.mu.Unlock()
		return s
	}
	c.mu.Unlock()

	s, ok := lookupServer(c.name)
	if !ok {
		return nil
	}
	c.mu.Lock()
	c.server = s
	c.mu.Unlock()
	return s
}

// SendRequest implements spec §4.4's "Send request" algorithm. sendTimeout
// gets real, non-silently-ignored semantics (see SPEC_FULL.md): a negative
// value means the caller's deadline has already elapsed by enqueue time and
// SendRequest fails fast with ResultSendTimeout without enqueuing; zero or
// positive values enqueue synchronously and always succeed, since the
// server's pending queue has no capacity bound to block against (matching
// the original's "currently not available" behavior for ordinary callers).
// recvTimeout < 0 means no reply is expected regardless of replyMode.
func (c *Client) SendRequest(msgID int32, payload []byte, sendTimeout, recvTimeout time.Duration, replyMode string) (Result, []byte) {
	server := c.resolveServer()
	if server == nil {
		return ResultTransportError, nil
	}

	c.mu.Lock()
	c.counter++
	privateID := -c.counter
	c.mu.Unlock()

	replyExpected := replyMode != "" && recvTimeout >= 0
	body := append([]byte(nil), payload...)

	var rl *runloop.RunLoop
	var scheduledHere bool
	if replyExpected {
		rl = runloop.Current()

		c.mu.Lock()
		if c.replySource == nil {
			src := runloop.NewCustomSource(0, runloop.Delegate{Perform: func() {}})
			_ = src.Activate()
			c.replySource = src
		}
		src := c.replySource
		c.replies[privateID] = &replySlot{}
		c.mu.Unlock()

		if !rl.ContainsSource(src, replyMode) {
			if err := rl.AddSource(src, replyMode); err == nil {
				scheduledHere = true
			}
		}
		server.registerBlocked(c)
	}

	if sendTimeout < 0 {
		c.cleanup(rl, replyMode, privateID, scheduledHere, server, replyExpected)
		return ResultSendTimeout, nil
	}

	msg := &Message{privateID: privateID, msgID: msgID, replyExpected: replyExpected, sender: c, payload: body}
	if err := server.enqueue(msg); err != nil {
		c.cleanup(rl, replyMode, privateID, scheduledHere, server, replyExpected)
		return ResultTransportError, nil
	}

	if !replyExpected {
		return ResultSuccess, nil
	}

	result, reply := c.waitForReply(rl, replyMode, privateID, recvTimeout, server)
	c.cleanup(rl, replyMode, privateID, scheduledHere, server, replyExpected)
	return result, reply
}

// waitForReply repeatedly re-enters the calling goroutine's run-loop in
// replyMode (returning as soon as any source is handled) and checks the
// replies map, until a reply arrives, the deadline passes, or the server is
// invalidated (spec §4.4 "Send request", steps 6).
func (c *Client) waitForReply(rl *runloop.RunLoop, replyMode string, privateID int64, recvTimeout time.Duration, server *Server) (Result, []byte) {
	deadline := time.Now().Add(recvTimeout)
	for {
		c.mu.Lock()
		slot := c.replies[privateID]
		if slot != nil && slot.has {
			reply := slot.blob
			c.mu.Unlock()
			return ResultSuccess, reply
		}
		c.mu.Unlock()

		if !server.IsValid() {
			return ResultTransportError, nil
		}

		remaining := time.Until(deadline)
		if remaining <= 0 {
			return ResultReceiveTimeout, nil
		}

		rl.RunInModes([]string{replyMode}, remaining, true)
	}
}

// cleanup removes the reply-source scheduling this call added (spec §4.4
// step 7) and the replies map entry, in all cases.
func (c *Client) cleanup(rl *runloop.RunLoop, replyMode string, privateID int64, scheduledHere bool, server *Server, replyExpected bool) {
	if replyExpected {
		server.unregisterBlocked(c)
		if scheduledHere && rl != nil {
			c.mu.Lock()
			src := c.replySource
			c.mu.Unlock()
			if src != nil {
				_ = rl.RemoveSource(src, replyMode)
			}
		}
	}
	c.mu.Lock()
	delete(c.replies, privateID)
	c.mu.Unlock()
}

// wakeForInvalidation signals the client's reply source so a blocked
// SendRequest wakes and re-checks server validity.
func (c *Client) wakeForInvalidation() {
	c.mu.Lock()
	src := c.replySource
	c.mu.Unlock()
	if src != nil {
		src.Signal()
	}
}

// sendReply writes blob into client.replies[privateID] and signals the
// client's reply source, waking its owning loop (spec §4.4 "Send reply").
func sendReply(client *Client, privateID int64, blob []byte) {
	client.mu.Lock()
	if slot, ok := client.replies[privateID]; ok {
		slot.has = true
		slot.blob = blob
	}
	src := client.replySource
	client.mu.Unlock()
	if src != nil {
		src.Signal()
	}
}
