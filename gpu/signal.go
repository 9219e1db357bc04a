package gpu

import (
	"github.com/cockroachdb/errors"
)

// Signal is an awaitable GPU completion: "the GPU has finished all work
// submitted with this signal chained in". Signals are composed with Join and
// Then and come in three forms: already complete (Now), pending on a fence or
// semaphore (FenceSignal, SemaphoreSignal, Then) and joined (Join).
//
// Signals are not safe for concurrent use; they belong to the frame loop.
type Signal interface {
	// Done polls for completion without blocking.
	Done() bool
	// Wait blocks until the signal has completed and releases everything it
	// guards.
	Wait() error
	// Cleanup releases guarded resources whose work has provably finished.
	// It never blocks.
	Cleanup()

	// waits hands the GPU-side semaphores that chained work must wait on to
	// the caller, which becomes responsible for releasing them.
	waits() []Semaphore
	// resolve runs guards and releases handles. Callers only invoke it once
	// Done reports true, or when a later fence on the same queue covers it.
	resolve()
}

// Work submits GPU work that waits on the given semaphores and returns the
// fence signaled when it completes.
type Work func(waits []Semaphore) (Fence, error)

type readySignal struct{}

// Now returns a signal that is already complete.
func Now() Signal { return readySignal{} }

func (readySignal) Done() bool         { return true }
func (readySignal) Wait() error        { return nil }
func (readySignal) Cleanup()           {}
func (readySignal) waits() []Semaphore { return nil }
func (readySignal) resolve()           {}

// pendingSignal waits on a fence (host-pollable) or a semaphore (GPU-only).
type pendingSignal struct {
	fence  Fence
	sem    Semaphore
	parent Signal
	guards []func()
	// waited are the semaphores the fenced work consumed. They are released
	// once the fence signals.
	waited   []Semaphore
	consumed bool
	done     bool
}

// FenceSignal returns a signal pending on fence. guards run once the fence
// has signaled and the signal is cleaned up or waited on.
func FenceSignal(fence Fence, guards ...func()) Signal {
	return &pendingSignal{fence: fence, guards: guards}
}

// SemaphoreSignal returns a GPU-only signal. It cannot be waited on from the
// host; it completes once chained work has consumed the semaphore.
func SemaphoreSignal(sem Semaphore) Signal {
	return &pendingSignal{sem: sem}
}

func (p *pendingSignal) Done() bool {
	if p.done {
		return true
	}
	if p.fence == nil {
		return p.consumed
	}
	ok, err := p.fence.Signaled()
	if err != nil {
		Logger().Warn("failed to poll fence", "err", err)
		return false
	}
	return ok
}

func (p *pendingSignal) Wait() error {
	if p.done {
		return nil
	}
	if p.fence == nil {
		if !p.consumed {
			return errors.AssertionFailedf("cannot wait on a GPU-only signal that was never chained")
		}
		p.resolve()
		return nil
	}
	if err := p.fence.Wait(); err != nil {
		return errors.Wrap(err, "failed to wait for fence")
	}
	p.resolve()
	return nil
}

func (p *pendingSignal) Cleanup() {
	if p.done {
		return
	}
	if p.Done() {
		p.resolve()
		return
	}
	if p.parent != nil {
		p.parent.Cleanup()
	}
}

func (p *pendingSignal) waits() []Semaphore {
	if p.sem == nil || p.consumed {
		return nil
	}
	p.consumed = true
	return []Semaphore{p.sem}
}

func (p *pendingSignal) resolve() {
	if p.done {
		return
	}
	p.done = true
	// A signaled fence covers every earlier submission on the queue.
	if p.parent != nil {
		p.parent.resolve()
		p.parent = nil
	}
	for _, g := range p.guards {
		g()
	}
	p.guards = nil
	for _, s := range p.waited {
		s.Release()
	}
	p.waited = nil
	if p.fence != nil {
		p.fence.Release()
	}
}

type joinedSignal struct {
	a, b Signal
}

// Join returns a signal that completes when both a and b have completed.
// A nil or already complete side is dropped.
func Join(a, b Signal) Signal {
	switch {
	case a == nil || isReady(a):
		if b == nil {
			return Now()
		}
		return b
	case b == nil || isReady(b):
		return a
	}
	return &joinedSignal{a: a, b: b}
}

func isReady(s Signal) bool {
	_, ok := s.(readySignal)
	return ok
}

func (j *joinedSignal) Done() bool {
	return j.a.Done() && j.b.Done()
}

func (j *joinedSignal) Wait() error {
	if err := j.a.Wait(); err != nil {
		return err
	}
	return j.b.Wait()
}

func (j *joinedSignal) Cleanup() {
	j.a.Cleanup()
	j.b.Cleanup()
}

func (j *joinedSignal) waits() []Semaphore {
	return append(j.a.waits(), j.b.waits()...)
}

func (j *joinedSignal) resolve() {
	j.a.resolve()
	j.b.resolve()
}

// Then runs work chained after prev: work receives the semaphores prev
// exposes and the returned signal completes when work's fence signals.
// guards run when that happens. prev stays reachable from the new signal
// until then, so nothing it guards is released early.
//
// If work fails, the semaphores it was handed are released and prev is
// left untouched.
func Then(prev Signal, work Work, guards ...func()) (Signal, error) {
	if prev == nil {
		prev = Now()
	}
	waits := prev.waits()
	fence, err := work(waits)
	if err != nil {
		for _, s := range waits {
			s.Release()
		}
		return nil, err
	}
	return &pendingSignal{
		fence:  fence,
		parent: prev,
		guards: guards,
		waited: waits,
	}, nil
}
