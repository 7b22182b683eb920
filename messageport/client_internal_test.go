package messageport

import (
	"fmt"
	"testing"
	"time"

	runloop "github.com/joeycumines/go-corerunloop"
)

// TestSendRequestLeavesNoLeftoverReplyEntry is a white-box check of spec §8
// scenario 5's second assertion: after a ReceiveTimeout, the client's
// replies map has no leftover entry for the request.
func TestSendRequestLeavesNoLeftoverReplyEntry(t *testing.T) {
	name := fmt.Sprintf("internal-leftover-%d", time.Now().UnixNano())
	CreateServer(name, func(int32, []byte) []byte { return nil }, nil)

	client := CreateClient(name)
	result, _ := client.SendRequest(1, []byte("x"), 0, 40*time.Millisecond, runloop.DefaultMode)
	if result != ResultReceiveTimeout {
		t.Fatalf("result = %v, want ResultReceiveTimeout", result)
	}

	client.mu.Lock()
	n := len(client.replies)
	client.mu.Unlock()
	if n != 0 {
		t.Fatalf("replies map should be empty after timeout, has %d entries", n)
	}
}
