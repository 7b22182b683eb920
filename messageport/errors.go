package messageport

import (
	"errors"
	"fmt"
)

// ErrServerInvalid is returned internally when a send targets a server that
// has already been invalidated; SendRequest surfaces this as
// ResultTransportError rather than a Go error, per spec §4.4's error
// taxonomy.
var ErrServerInvalid = errors.New("messageport: server has been invalidated")

// Result is a message-port operation's outcome (spec §6.3). Unlike
// runloop.Result, zero is a valid success value, matching the original's
// error taxonomy.
type Result int

const (
	ResultSuccess        Result = 0
	ResultSendTimeout    Result = -1
	ResultReceiveTimeout Result = -2
	ResultTransportError Result = -3
	ResultInvalid        Result = -4
)

func (r Result) String() string {
	switch r {
	case ResultSuccess:
		return "Success"
	case ResultSendTimeout:
		return "SendTimeout"
	case ResultReceiveTimeout:
		return "ReceiveTimeout"
	case ResultTransportError:
		return "TransportError"
	case ResultInvalid:
		return "Invalid"
	default:
		return fmt.Sprintf("Result(%d)", int(r))
	}
}
