package messageport

// Message is the unit exchanged between a client and a server port (spec
// §3 "Message-port entities"). privateID is the negative of the client's
// monotonic request counter at allocation time; msgID is the caller-supplied
// public identifier, opaque to the transport.
type Message struct {
	privateID     int64
	msgID         int32
	replyExpected bool
	sender        *Client
	payload       []byte
}
