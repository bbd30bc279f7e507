// Package notify tells subscribers when a person shows up in front of the
// camera after an absence.
package notify

import (
	"sync"
	"time"

	"github.com/davecgh/go-spew/spew"
	log "github.com/sirupsen/logrus"
)

// Notification is sent to all NotifyListeners registered with Notifier.
type Notification struct {
	TimeString string
	Session    string
	Skeletons  int
}

type NotifyListener interface {
	Notify(n *Notification) error
}

type Options struct {
	// AbsentFor is how long no skeleton must be seen before the next
	// appearance notifies again.
	AbsentFor time.Duration

	// Notifications outside [HoursStart, HoursEnd) are suppressed.
	HoursStart int
	HoursEnd   int
}

// Notifier tracks presence from detection results.
type Notifier struct {
	Listeners []NotifyListener
	Session   string
	Options   Options

	present  bool
	lastSeen time.Time

	l sync.Mutex
}

func (n *Notifier) quiet(t time.Time) bool {
	h := t.Hour()
	if n.Options.HoursStart == n.Options.HoursEnd {
		return false
	}
	if n.Options.HoursStart < n.Options.HoursEnd {
		return h < n.Options.HoursStart || h >= n.Options.HoursEnd
	}
	// Window wraps midnight.
	return h < n.Options.HoursStart && h >= n.Options.HoursEnd
}

// SkeletonsDetected is invoked with the number of skeletons in each
// successful detection result.
func (n *Notifier) SkeletonsDetected(count int, at time.Time) {
	n.l.Lock()
	defer n.l.Unlock()

	if count == 0 {
		if n.present && at.Sub(n.lastSeen) >= n.Options.AbsentFor {
			log.Infof("No skeleton seen since %v", n.lastSeen.Format(time.Kitchen))
			n.present = false
		}
		return
	}
	stillPresent := n.present && at.Sub(n.lastSeen) < n.Options.AbsentFor
	n.lastSeen = at
	if stillPresent {
		return
	}
	n.present = true

	if n.quiet(at) {
		log.Infof("Would send notification, but currently in quiet hours.")
		return
	}
	notification := &Notification{
		TimeString: at.Format("3:04 PM"),
		Session:    n.Session,
		Skeletons:  count,
	}
	log.Infof("Sending notification: %v", spew.Sdump(notification))
	for _, l := range n.Listeners {
		go func(l NotifyListener) {
			if err := l.Notify(notification); err != nil {
				log.Errorf("Failed to send notification: %v", err)
			}
		}(l)
	}
}

// Present reports whether a skeleton is currently considered in view.
func (n *Notifier) Present() bool {
	n.l.Lock()
	defer n.l.Unlock()
	return n.present
}
