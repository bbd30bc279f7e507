package util

import (
	"sync"
	"time"
)

// Event is a one-shot signal. Once notified it stays notified.
type Event struct {
	once sync.Once
	c    chan struct{}
}

func NewEvent() *Event {
	return &Event{
		c: make(chan struct{}),
	}
}

// Notify marks the event. Safe to call more than once.
func (e *Event) Notify() {
	e.once.Do(func() { close(e.c) })
}

func (e *Event) Wait() {
	<-e.c
}

// WaitTimeout blocks until the event is notified or d elapses, returning
// whether the event fired.
func (e *Event) WaitTimeout(d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-e.c:
		return true
	case <-t.C:
		return false
	}
}

// Done returns a channel closed on Notify, for use in select.
func (e *Event) Done() <-chan struct{} {
	return e.c
}
