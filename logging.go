package runloop

import (
	"encoding/json"
	"io"
	"os"
	"sync"
	"time"

	"github.com/joeycumines/logiface"
)

// jsonEvent is a minimal, self-contained logiface.Event implementation:
// JSON-lines oriented, in the manner of the teacher's stumpy-style backend,
// but without pulling in a sibling module's JSON encoder dependency.
type jsonEvent struct {
	logiface.UnimplementedEvent

	level  logiface.Level
	fields map[string]any
	msg    string
}

func (e *jsonEvent) Level() logiface.Level { return e.level }

func (e *jsonEvent) AddField(key string, val any) {
	if e.fields == nil {
		e.fields = make(map[string]any, 4)
	}
	e.fields[key] = val
}

func (e *jsonEvent) AddMessage(msg string) bool {
	e.msg = msg
	return true
}

func (e *jsonEvent) AddError(err error) bool {
	e.AddField("error", err.Error())
	return true
}

func (e *jsonEvent) AddString(key string, val string) bool {
	e.AddField(key, val)
	return true
}

func (e *jsonEvent) AddInt(key string, val int) bool {
	e.AddField(key, val)
	return true
}

func (e *jsonEvent) AddDuration(key string, val time.Duration) bool {
	e.AddField(key, val.String())
	return true
}

func (e *jsonEvent) AddTime(key string, val time.Time) bool {
	e.AddField(key, val.Format(time.RFC3339Nano))
	return true
}

func (e *jsonEvent) AddBool(key string, val bool) bool {
	e.AddField(key, val)
	return true
}

func (e *jsonEvent) reset() {
	e.level = logiface.LevelDisabled
	e.msg = ""
	for k := range e.fields {
		delete(e.fields, k)
	}
}

var jsonEventPool = sync.Pool{New: func() any { return new(jsonEvent) }}

func newJSONEvent(level logiface.Level) *jsonEvent {
	e := jsonEventPool.Get().(*jsonEvent)
	e.level = level
	return e
}

func releaseJSONEvent(e *jsonEvent) {
	e.reset()
	jsonEventPool.Put(e)
}

// jsonWriter serializes jsonEvent values as newline-delimited JSON, guarded
// by a mutex so concurrent goroutines logging through the same Logger never
// interleave partial lines.
type jsonWriter struct {
	mu  sync.Mutex
	out io.Writer
}

func (w *jsonWriter) Write(e *jsonEvent) error {
	line := struct {
		Level   string         `json:"level"`
		Message string         `json:"msg,omitempty"`
		Fields  map[string]any `json:"fields,omitempty"`
	}{
		Level:   e.level.String(),
		Message: e.msg,
		Fields:  e.fields,
	}
	b, err := json.Marshal(line)
	if err != nil {
		return err
	}
	b = append(b, '\n')
	w.mu.Lock()
	defer w.mu.Unlock()
	_, err = w.out.Write(b)
	return err
}

// NewJSONLogger builds a logiface.Logger writing newline-delimited JSON to
// w, at the given minimum level. Pass os.Stderr for typical CLI/daemon use.
func NewJSONLogger(w io.Writer, level logiface.Level) *logiface.Logger[logiface.Event] {
	if w == nil {
		w = os.Stderr
	}
	jw := &jsonWriter{out: w}
	l := logiface.New[*jsonEvent](
		logiface.WithLevel[*jsonEvent](level),
		logiface.WithEventFactory[*jsonEvent](logiface.NewEventFactoryFunc(newJSONEvent)),
		logiface.WithEventReleaser[*jsonEvent](logiface.NewEventReleaserFunc(releaseJSONEvent)),
		logiface.WithWriter[*jsonEvent](logiface.NewWriterFunc(jw.Write)),
	)
	return l.Logger()
}
