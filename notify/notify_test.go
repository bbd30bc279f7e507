package notify

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type listener struct {
	c chan *Notification
}

func (l *listener) Notify(n *Notification) error {
	l.c <- n
	return nil
}

func (l *listener) expect(t *testing.T) *Notification {
	t.Helper()
	select {
	case n := <-l.c:
		return n
	case <-time.After(5 * time.Second):
		t.Fatal("no notification")
	}
	return nil
}

func (l *listener) expectNone(t *testing.T) {
	t.Helper()
	select {
	case n := <-l.c:
		t.Fatalf("unexpected notification %+v", n)
	case <-time.After(50 * time.Millisecond):
	}
}

func newNotifier(l *listener) *Notifier {
	return &Notifier{
		Listeners: []NotifyListener{l},
		Session:   "s1",
		Options:   Options{AbsentFor: time.Minute, HoursStart: 6, HoursEnd: 22},
	}
}

func at(hour, min, sec int) time.Time {
	return time.Date(2024, 5, 1, hour, min, sec, 0, time.Local)
}

func TestNotifiesOnAppearance(t *testing.T) {
	l := &listener{c: make(chan *Notification, 10)}
	n := newNotifier(l)

	n.SkeletonsDetected(0, at(12, 0, 0))
	assert.False(t, n.Present())

	n.SkeletonsDetected(2, at(12, 0, 1))
	got := l.expect(t)
	assert.Equal(t, &Notification{TimeString: "12:00 PM", Session: "s1", Skeletons: 2}, got)
	require.True(t, n.Present())

	// Brief gaps do not renotify.
	n.SkeletonsDetected(0, at(12, 0, 30))
	n.SkeletonsDetected(1, at(12, 0, 40))
	l.expectNone(t)
}

func TestRenotifiesAfterAbsence(t *testing.T) {
	l := &listener{c: make(chan *Notification, 10)}
	n := newNotifier(l)

	n.SkeletonsDetected(1, at(9, 0, 0))
	l.expect(t)
	n.SkeletonsDetected(0, at(9, 2, 0))
	assert.False(t, n.Present())
	n.SkeletonsDetected(1, at(9, 3, 0))
	l.expect(t)

	// No empty results in between, but a long gap counts as absence.
	n.SkeletonsDetected(1, at(9, 10, 0))
	l.expect(t)
}

func TestQuietHours(t *testing.T) {
	l := &listener{c: make(chan *Notification, 10)}
	n := newNotifier(l)
	n.SkeletonsDetected(1, at(23, 0, 0))
	l.expectNone(t)
	assert.True(t, n.Present())

	n.Options.HoursStart, n.Options.HoursEnd = 22, 6
	assert.False(t, n.quiet(at(23, 0, 0)))
	assert.False(t, n.quiet(at(3, 0, 0)))
	assert.True(t, n.quiet(at(12, 0, 0)))

	n.Options.HoursStart, n.Options.HoursEnd = 0, 0
	assert.False(t, n.quiet(at(12, 0, 0)))
}
