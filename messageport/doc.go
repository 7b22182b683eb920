// Package messageport implements the in-process, inter-goroutine
// request/reply layer built on top of a runloop.RunLoop's custom-source
// contract: a
// named server port drains a pending-request queue on its owning loop, and
// a client port posts requests, optionally blocking the calling goroutine
// (by re-entering its own run-loop) until a reply arrives or a deadline
// passes.
//
// A server is created once per name via CreateServer and scheduled onto a
// run-loop with ScheduleInRunLoop; any number of clients may then
// CreateClient(name) and SendRequest against it, from any goroutine.
package messageport
