package runloop

import "strings"

// Activity is a bitmask over the points in a run-loop iteration at which
// observers may fire. Values match the canonical layout: Entry=1,
// BeforeTimers=2, BeforeSources=4, BeforeWaiting=8, AfterWaiting=16, Exit=32.
type Activity uint32

const (
	ActivityEntry Activity = 1 << iota
	ActivityBeforeTimers
	ActivityBeforeSources
	ActivityBeforeWaiting
	ActivityAfterWaiting
	ActivityExit

	ActivityAll = ActivityEntry | ActivityBeforeTimers | ActivityBeforeSources |
		ActivityBeforeWaiting | ActivityAfterWaiting | ActivityExit
)

var activityNames = [...]struct {
	bit  Activity
	name string
}{
	{ActivityEntry, "Entry"},
	{ActivityBeforeTimers, "BeforeTimers"},
	{ActivityBeforeSources, "BeforeSources"},
	{ActivityBeforeWaiting, "BeforeWaiting"},
	{ActivityAfterWaiting, "AfterWaiting"},
	{ActivityExit, "Exit"},
}

// String renders the set bits, comma-joined in canonical order.
func (a Activity) String() string {
	if a == 0 {
		return "none"
	}
	var b strings.Builder
	first := true
	for _, e := range activityNames {
		if a&e.bit == 0 {
			continue
		}
		if !first {
			b.WriteByte(',')
		}
		b.WriteString(e.name)
		first = false
	}
	return b.String()
}

// Result is the outcome of RunLoop.RunInModes.
type Result int

const (
	ResultSourceHandled Result = 1
	ResultTimedOut      Result = 2
	ResultStopped       Result = 3
	ResultFinished      Result = 4
)

func (r Result) String() string {
	switch r {
	case ResultSourceHandled:
		return "SourceHandled"
	case ResultTimedOut:
		return "TimedOut"
	case ResultStopped:
		return "Stopped"
	case ResultFinished:
		return "Finished"
	default:
		return "Result(unknown)"
	}
}

// DefaultMode is the canonical mode name most callers schedule work in.
const DefaultMode = "CoreRunLoopModeDefault"
