// Package runloop provides a per-goroutine reactor: a mode-partitioned
// registry of custom software sources, OS-waitable descriptor sources, and
// timers, dispatched through user callbacks, with lifecycle observers and a
// platform wait backend (epoll on Linux, kqueue on Darwin,
// WaitForMultipleObjects on Windows).
//
// # Architecture
//
// A [RunLoop] owns a set of named [Mode] buckets. Each [Mode] holds the
// sources, timers, and observers relevant to a particular activity (the
// package exports [DefaultMode] as the canonical bucket most callers use).
// [RunLoop.RunInModes] runs the reactor algorithm over a chosen subset of
// modes until one of [Result]'s four outcomes is reached.
//
// [Source] is a uniform handle over three variants — custom (software
// signaled, the cross-thread notification primitive), descriptor (an OS
// file descriptor), and timer (one-shot or periodic) — dispatched through a
// [Delegate]. [Observer] callbacks fire at defined points of a run-loop
// iteration ([Activity]).
//
// The messageport subpackage builds an inter-goroutine request/reply
// transport on top of a custom [Source], as the canonical consumer of the
// run-loop's custom-source contract.
//
// # Thread model
//
// Exactly one goroutine executes a [RunLoop]'s run algorithm at a time (its
// "owner"); that goroutine may re-enter the same run loop (the message port
// does this while waiting for a reply), but a different goroutine attempting
// to run the same loop concurrently receives [ErrLoopAlreadyRunning]. Adding
// or removing sources/timers/observers, [Source.Signal], [RunLoop.WakeUp],
// and [RunLoop.Stop] are safe to call from any goroutine.
//
// # Usage
//
//	rl := runloop.Current()
//
//	src := runloop.NewCustomSource(0, runloop.Delegate{
//		Perform: func() { fmt.Println("fired") },
//	})
//	rl.AddSource(src, runloop.DefaultMode)
//	src.Activate()
//	src.Signal()
//
//	result, err := rl.RunInModes([]string{runloop.DefaultMode}, 0, true)
package runloop
