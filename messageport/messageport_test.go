package messageport_test

import (
	"fmt"
	"sync"
	"testing"
	"time"

	runloop "github.com/joeycumines/go-corerunloop"
	"github.com/joeycumines/go-corerunloop/messageport"
	"github.com/stretchr/testify/require"
)

// TestEchoRoundTrip covers spec §8 end-to-end scenario 4: a server whose
// callback echoes the payload, a client on a second goroutine sending a
// request and waiting for the reply.
func TestEchoRoundTrip(t *testing.T) {
	name := uniqueName(t)
	rl := runloop.New()
	defer rl.Close()

	server := messageport.CreateServer(name, func(msgID int32, payload []byte) []byte {
		return append([]byte(nil), payload...)
	}, nil)
	require.NoError(t, server.ScheduleInRunLoop(rl, runloop.DefaultMode))

	go func() {
		result, err := rl.RunInModes([]string{runloop.DefaultMode}, 2*time.Second, false)
		_ = result
		_ = err
	}()

	resultCh := make(chan struct {
		result messageport.Result
		reply  []byte
	}, 1)
	go func() {
		client := messageport.CreateClient(name)
		r, reply := client.SendRequest(7, []byte("hello"), 0, time.Second, runloop.DefaultMode)
		resultCh <- struct {
			result messageport.Result
			reply  []byte
		}{r, reply}
	}()

	select {
	case got := <-resultCh:
		require.Equal(t, messageport.ResultSuccess, got.result)
		require.Equal(t, "hello", string(got.reply))
	case <-time.After(3 * time.Second):
		t.Fatal("send_request did not return within the deadline")
	}

	rl.Stop()
}

// TestReceiveTimeoutWhenServerNeverScheduled covers scenario 5: a server
// that exists in the registry but was never scheduled on any loop, so the
// client must observe ReceiveTimeout and leave no leftover replies-map
// entry.
func TestReceiveTimeoutWhenServerNeverScheduled(t *testing.T) {
	name := uniqueName(t)
	messageport.CreateServer(name, func(int32, []byte) []byte { return nil }, nil)

	client := messageport.CreateClient(name)
	start := time.Now()
	result, reply := client.SendRequest(1, []byte("x"), 0, 80*time.Millisecond, runloop.DefaultMode)
	elapsed := time.Since(start)

	require.Equal(t, messageport.ResultReceiveTimeout, result)
	require.Nil(t, reply)
	require.GreaterOrEqual(t, elapsed, 80*time.Millisecond)
}

// TestNoReplyExpectedReturnsSuccessSynchronously covers the property that a
// message sent with reply_expected=false never waits.
func TestNoReplyExpectedReturnsSuccessSynchronously(t *testing.T) {
	name := uniqueName(t)
	received := make(chan []byte, 1)

	server := messageport.CreateServer(name, func(_ int32, payload []byte) []byte {
		received <- append([]byte(nil), payload...)
		return nil
	}, nil)
	rl := runloop.New()
	defer rl.Close()
	require.NoError(t, server.ScheduleInRunLoop(rl, runloop.DefaultMode))
	go rl.RunInModes([]string{runloop.DefaultMode}, 2*time.Second, false)
	defer rl.Stop()

	client := messageport.CreateClient(name)
	start := time.Now()
	result, reply := client.SendRequest(1, []byte("fire-and-forget"), 0, -1, "")
	elapsed := time.Since(start)

	require.Equal(t, messageport.ResultSuccess, result)
	require.Nil(t, reply)
	require.Less(t, elapsed, 100*time.Millisecond, "reply_expected=false must never wait")

	select {
	case payload := <-received:
		require.Equal(t, "fire-and-forget", string(payload))
	case <-time.After(2 * time.Second):
		t.Fatal("server never drained the fire-and-forget message")
	}
}

// TestInvalidateWakesBlockedClient exercises Server.Invalidate's contract:
// a client blocked in SendRequest against a server that is never scheduled
// (so it never drains the request) observes TransportError as soon as the
// server is invalidated, rather than waiting out the full receive timeout.
func TestInvalidateWakesBlockedClient(t *testing.T) {
	name := uniqueName(t)
	server := messageport.CreateServer(name, func(int32, []byte) []byte { return nil }, nil)

	resultCh := make(chan messageport.Result, 1)
	start := time.Now()
	go func() {
		client := messageport.CreateClient(name)
		r, _ := client.SendRequest(1, nil, 0, 5*time.Second, runloop.DefaultMode)
		resultCh <- r
	}()

	time.Sleep(50 * time.Millisecond)
	server.Invalidate()

	select {
	case r := <-resultCh:
		require.Equal(t, messageport.ResultTransportError, r)
		require.Less(t, time.Since(start), 2*time.Second)
	case <-time.After(3 * time.Second):
		t.Fatal("send_request did not observe invalidation")
	}
}

var nameCounter int64
var nameCounterMu sync.Mutex

func uniqueName(t *testing.T) string {
	t.Helper()
	nameCounterMu.Lock()
	nameCounter++
	n := nameCounter
	nameCounterMu.Unlock()
	return fmt.Sprintf("%s-%d", t.Name(), n)
}
