package runloop

import "testing"

func TestActivityStringCanonicalOrder(t *testing.T) {
	a := ActivityExit | ActivityEntry | ActivityBeforeWaiting
	if got, want := a.String(), "Entry,BeforeWaiting,Exit"; got != want {
		t.Fatalf("got %q, want %q", got, want)
	}
	if Activity(0).String() != "none" {
		t.Fatal("zero activity should render as none")
	}
}

func TestResultValues(t *testing.T) {
	cases := []struct {
		r    Result
		want string
	}{
		{ResultSourceHandled, "SourceHandled"},
		{ResultTimedOut, "TimedOut"},
		{ResultStopped, "Stopped"},
		{ResultFinished, "Finished"},
	}
	for _, c := range cases {
		if c.r.String() != c.want {
			t.Errorf("Result(%d).String() = %q, want %q", c.r, c.r.String(), c.want)
		}
	}
	if ActivityEntry != 1 || ActivityBeforeTimers != 2 || ActivityBeforeSources != 4 ||
		ActivityBeforeWaiting != 8 || ActivityAfterWaiting != 16 || ActivityExit != 32 {
		t.Fatal("activity bit values must match the canonical layout")
	}
	if ResultSourceHandled != 1 || ResultTimedOut != 2 || ResultStopped != 3 || ResultFinished != 4 {
		t.Fatal("result code values must match spec §6.3")
	}
}
