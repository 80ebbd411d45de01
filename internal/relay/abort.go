package relay

import "sync"

// abort is a one-shot notification. Firing it more than once is harmless.
type abort struct {
	once sync.Once
	ch   chan struct{}
}

func newAbort() *abort {
	return &abort{ch: make(chan struct{})}
}

func (a *abort) fire() {
	a.once.Do(func() { close(a.ch) })
}

func (a *abort) done() <-chan struct{} {
	return a.ch
}
