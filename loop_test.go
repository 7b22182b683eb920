package runloop

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

// TestRunInModesPriorityOrderingAndSourceHandled covers spec §8 end-to-end
// scenario 1: two signaled custom sources of differing priority, run with
// returnAfterHandle, must fire the higher-priority (lower integer) one
// first and return SourceHandled after the first batch.
func TestRunInModesPriorityOrderingAndSourceHandled(t *testing.T) {
	rl := New()
	defer rl.Close()

	var mu sync.Mutex
	var order []string

	s1 := NewCustomSource(0, Delegate{Perform: func() {
		mu.Lock()
		order = append(order, "s1")
		mu.Unlock()
	}})
	s2 := NewCustomSource(-1, Delegate{Perform: func() {
		mu.Lock()
		order = append(order, "s2")
		mu.Unlock()
	}})
	require.NoError(t, s1.Activate())
	require.NoError(t, s2.Activate())
	require.NoError(t, rl.AddSource(s1, DefaultMode))
	require.NoError(t, rl.AddSource(s2, DefaultMode))

	s1.Signal()
	s2.Signal()

	result, err := rl.RunInModes([]string{DefaultMode}, time.Second, true)
	require.NoError(t, err)
	require.Equal(t, ResultSourceHandled, result)

	mu.Lock()
	defer mu.Unlock()
	require.Equal(t, []string{"s2", "s1"}, order)
}

// TestOneShotTimerFiresOnce covers the property "a timer with period=0 fires
// at most once" (spec §8).
func TestOneShotTimerFiresOnce(t *testing.T) {
	rl := New()
	defer rl.Close()

	var fired int
	var mu sync.Mutex
	done := make(chan struct{})
	timer := NewTimerSource(10*time.Millisecond, 0, 0, func() {
		mu.Lock()
		fired++
		n := fired
		mu.Unlock()
		if n == 1 {
			close(done)
		}
	})
	require.NoError(t, timer.Activate())
	require.NoError(t, rl.AddSource(timer, DefaultMode))

	go func() {
		<-done
		time.Sleep(30 * time.Millisecond)
		rl.Stop()
	}()

	result, err := rl.RunInModes([]string{DefaultMode}, time.Second, false)
	require.NoError(t, err)
	require.Contains(t, []Result{ResultStopped, ResultFinished}, result)

	mu.Lock()
	defer mu.Unlock()
	require.Equal(t, 1, fired)
}

// TestPeriodicTimerReschedulesStrictlyAfterNow covers the property that a
// period>0 timer observed at T has its next fire-time strictly greater than
// T (spec §8). Every firing moves the fire-time forward by at least one
// whole period, so after count firings it lies at least count periods past
// the first fire-time.
func TestPeriodicTimerReschedulesStrictlyAfterNow(t *testing.T) {
	rl := New()
	defer rl.Close()

	var mu sync.Mutex
	var count int
	timer := NewTimerSource(5*time.Millisecond, 10*time.Millisecond, 0, func() {
		mu.Lock()
		count++
		mu.Unlock()
	})
	timer.mu.Lock()
	first := timer.fireTime
	timer.mu.Unlock()
	require.NoError(t, timer.Activate())
	require.NoError(t, rl.AddSource(timer, DefaultMode))

	go func() {
		time.Sleep(60 * time.Millisecond)
		rl.Stop()
	}()

	result, err := rl.RunInModes([]string{DefaultMode}, time.Second, false)
	require.NoError(t, err)
	require.Equal(t, ResultStopped, result)

	mu.Lock()
	defer mu.Unlock()
	require.GreaterOrEqual(t, count, 3)

	timer.mu.Lock()
	fireTime := timer.fireTime
	timer.mu.Unlock()
	require.True(t, !fireTime.Before(first.Add(time.Duration(count)*10*time.Millisecond)), "fireTime should have advanced")
}

// TestStopCausesStoppedResult covers "stop(L) from any thread causes L to
// return Stopped at the next exit-check boundary" (spec §8).
func TestStopCausesStoppedResult(t *testing.T) {
	rl := New()
	defer rl.Close()

	go func() {
		time.Sleep(20 * time.Millisecond)
		rl.Stop()
	}()

	result, err := rl.RunInModes([]string{DefaultMode}, Forever, false)
	require.NoError(t, err)
	require.Equal(t, ResultStopped, result)
}

// TestFinishedWhenModeEmpty covers the "all current modes empty" exit
// condition for a mode with nothing scheduled. Since nothing wakes the loop
// early, the exit-check order (spec §4.2.h checks the deadline before
// emptiness) means a short deadline can also legitimately surface as
// TimedOut; either is a correct outcome for a mode that never had anything
// in it.
func TestFinishedWhenModeEmpty(t *testing.T) {
	rl := New()
	defer rl.Close()

	result, err := rl.RunInModes([]string{DefaultMode}, 50*time.Millisecond, false)
	require.NoError(t, err)
	require.Contains(t, []Result{ResultFinished, ResultTimedOut}, result)
}

// TestObserversFireInAscendingPriorityWithinActivity covers "observers fire
// in ascending priority within an activity" (spec §8).
func TestObserversFireInAscendingPriorityWithinActivity(t *testing.T) {
	rl := New()
	defer rl.Close()

	var mu sync.Mutex
	var order []int32

	record := func(p int32) func(*Observer, Activity) {
		return func(*Observer, Activity) {
			mu.Lock()
			order = append(order, p)
			mu.Unlock()
		}
	}
	o2 := NewObserver(ActivityEntry, 2, record(2), nil)
	o1 := NewObserver(ActivityEntry, 1, record(1), nil)
	o0 := NewObserver(ActivityEntry, 0, record(0), nil)
	require.NoError(t, rl.AddObserver(o2, DefaultMode))
	require.NoError(t, rl.AddObserver(o1, DefaultMode))
	require.NoError(t, rl.AddObserver(o0, DefaultMode))

	result, err := rl.RunInModes([]string{DefaultMode}, 50*time.Millisecond, false)
	require.NoError(t, err)
	require.Contains(t, []Result{ResultFinished, ResultTimedOut}, result)

	mu.Lock()
	defer mu.Unlock()
	require.Equal(t, []int32{0, 1, 2}, order)
}

// TestSignalClearsAfterCallout covers "signal(S) ... S.signaled is false
// after the callout" (spec §8).
func TestSignalClearsAfterCallout(t *testing.T) {
	rl := New()
	defer rl.Close()

	called := make(chan struct{}, 1)
	src := NewCustomSource(0, Delegate{Perform: func() {
		called <- struct{}{}
	}})
	require.NoError(t, src.Activate())
	require.NoError(t, rl.AddSource(src, DefaultMode))
	src.Signal()

	result, err := rl.RunInModes([]string{DefaultMode}, time.Second, true)
	require.NoError(t, err)
	require.Equal(t, ResultSourceHandled, result)

	select {
	case <-called:
	default:
		t.Fatal("source should have been dispatched")
	}

	src.mu.Lock()
	signaled := src.signaled
	src.mu.Unlock()
	require.False(t, signaled)
}
