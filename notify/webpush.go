package notify

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/SherClockHolmes/webpush-go"
	log "github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

type VAPIDKey struct {
	ID      uint `gorm:"primarykey"`
	Public  string
	Private string
}

// Subscription is a browser push endpoint.
type Subscription struct {
	gorm.Model

	Peer     string
	Endpoint string `gorm:"uniqueIndex;size:512"`
	JSON     string `gorm:"type:text"`

	LastSuccess        *time.Time
	LastFailure        *time.Time
	LastFailureMessage string
}

// Sender delivers one payload to one subscription. It is webpush.SendNotification
// outside of tests.
type Sender func(payload []byte, s *webpush.Subscription, o *webpush.Options) (*http.Response, error)

// WebPush sends notifications to subscribed browsers. Subscriptions and the
// VAPID key live in the recording database.
type WebPush struct {
	// Key is generated on first start and persisted.
	Key        *VAPIDKey
	Subscriber string
	Send       Sender

	db *gorm.DB
}

func NewWebPush(db *gorm.DB, subscriber string) (*WebPush, error) {
	if err := db.AutoMigrate(&VAPIDKey{}, &Subscription{}); err != nil {
		return nil, err
	}

	p := &WebPush{
		Key:        &VAPIDKey{},
		Subscriber: subscriber,
		Send:       webpush.SendNotification,
		db:         db,
	}
	err := db.First(p.Key).Error
	switch {
	case errors.Is(err, gorm.ErrRecordNotFound):
		priv, pub, err := webpush.GenerateVAPIDKeys()
		if err != nil {
			return nil, err
		}
		p.Key.Private = priv
		p.Key.Public = pub
		if err := db.Create(p.Key).Error; err != nil {
			return nil, err
		}
		log.Infof("Web push VAPID keys generated")
	case err != nil:
		return nil, err
	default:
		log.Infof("Web push VAPID keys loaded from database")
	}
	return p, nil
}

func (p *WebPush) RegisterHandlers(mux *http.ServeMux) {
	mux.HandleFunc("/push/pubkey", p.handlePubkey)
	mux.HandleFunc("/push/subscribe", p.handleSubscribe)
	mux.HandleFunc("/push/unsubscribe", p.handleUnsubscribe)
	mux.HandleFunc("/push/test", p.handleTest)
}

func (p *WebPush) handlePubkey(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain")
	io.WriteString(w, p.Key.Public)
}

func decodeSubscription(w http.ResponseWriter, r *http.Request) *webpush.Subscription {
	if r.Method != http.MethodPost {
		http.Error(w, "Invalid request method", http.StatusMethodNotAllowed)
		return nil
	}
	sub := &webpush.Subscription{}
	if err := json.NewDecoder(r.Body).Decode(sub); err != nil || sub.Endpoint == "" {
		http.Error(w, "invalid subscription", http.StatusBadRequest)
		return nil
	}
	return sub
}

func (p *WebPush) handleSubscribe(w http.ResponseWriter, r *http.Request) {
	sub := decodeSubscription(w, r)
	if sub == nil {
		return
	}
	jb, _ := json.Marshal(sub)
	s := &Subscription{
		Peer:     r.RemoteAddr,
		Endpoint: sub.Endpoint,
		JSON:     string(jb),
	}
	if err := p.db.Create(s).Error; err != nil {
		log.Errorf("Failed to create push subscription: %v", err)
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	log.Infof("Added push subscription for peer %v", s.Peer)
}

func (p *WebPush) handleUnsubscribe(w http.ResponseWriter, r *http.Request) {
	sub := decodeSubscription(w, r)
	if sub == nil {
		return
	}
	s := &Subscription{}
	if err := p.db.Where("endpoint = ?", sub.Endpoint).First(s).Error; errors.Is(err, gorm.ErrRecordNotFound) {
		http.Error(w, "subscription not found", http.StatusNotFound)
		return
	}
	if err := p.db.Delete(s).Error; err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	log.Infof("Removed push subscription for peer %v", s.Peer)
}

func (p *WebPush) handleTest(w http.ResponseWriter, r *http.Request) {
	if err := p.Notify(&Notification{TimeString: time.Now().Format("3:04 PM"), Session: "test", Skeletons: 1}); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}

func (p *WebPush) notifyOne(s *Subscription, payload []byte) error {
	var ws webpush.Subscription
	if err := json.Unmarshal([]byte(s.JSON), &ws); err != nil {
		return err
	}

	resp, err := p.Send(payload, &ws, &webpush.Options{
		Subscriber:      p.Subscriber,
		VAPIDPublicKey:  p.Key.Public,
		VAPIDPrivateKey: p.Key.Private,
		TTL:             120,
		Urgency:         webpush.UrgencyHigh,
		Topic:           "mocap_presence",
	})
	if resp != nil {
		defer resp.Body.Close()
		if resp.StatusCode == http.StatusNotFound || resp.StatusCode == http.StatusGone {
			log.Infof("Push service reports status %v, deleting subscription.", resp.Status)
			return p.db.Delete(s).Error
		}
	}

	now := time.Now()
	if err != nil {
		log.Warnf("Web push to %v failed: %v", s.Peer, err)
		s.LastFailure = &now
		s.LastFailureMessage = err.Error()
	} else {
		s.LastSuccess = &now
	}
	return p.db.Save(s).Error
}

func (p *WebPush) Notify(n *Notification) error {
	payload, err := json.Marshal(n)
	if err != nil {
		return err
	}

	var subs []*Subscription
	if err := p.db.Find(&subs).Error; err != nil {
		return err
	}

	log.Infof("Sending web push notification to %d subscribers", len(subs))
	var wg sync.WaitGroup
	for _, s := range subs {
		wg.Add(1)
		go func(s *Subscription) {
			defer wg.Done()
			if err := p.notifyOne(s, payload); err != nil {
				log.Errorf("Web push notify failed: %v", err)
			}
		}(s)
	}
	wg.Wait()
	return nil
}
