package serve

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	log "github.com/sirupsen/logrus"

	"mocap/skeleton"
)

const (
	// Time allowed to write message to the client
	writeWait  = 10 * time.Second
	pingPeriod = 10 * time.Second
)

// JointMessage is the websocket payload for one detected skeleton.
type JointMessage struct {
	Seq         uint64      `json:"seq"`
	Time        int64       `json:"time_ms"`
	Joints      [][]float32 `json:"joints"`
	Shift       []float32   `json:"shift"`
	Quaternions [][]float32 `json:"quaternions,omitempty"`
}

// JointStream pushes every detected skeleton to connected websocket clients.
// Clients that fall behind only ever see the newest sample.
type JointStream struct {
	upgrader websocket.Upgrader
	cs       map[chan []byte]bool
	addc     chan chan []byte
	delc     chan chan []byte
	publish  chan []byte
	clients  chan chan int
	close    chan chan bool
	// done is closed when the stream has shut down.
	done      chan struct{}
	closeOnce sync.Once
}

func NewJointStream() *JointStream {
	m := &JointStream{
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 4096,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
		cs:      make(map[chan []byte]bool),
		addc:    make(chan chan []byte),
		delc:    make(chan chan []byte),
		publish: make(chan []byte, 1),
		clients: make(chan chan int),
		close:   make(chan chan bool),
		done:    make(chan struct{}),
	}
	go m.loop()
	return m
}

func (m *JointStream) loop() {
	for {
		select {
		case c := <-m.addc:
			m.cs[c] = true
		case c := <-m.delc:
			delete(m.cs, c)
		case msg := <-m.publish:
			for c := range m.cs {
				offer(c, msg)
			}
		case r := <-m.clients:
			r <- len(m.cs)
		case c := <-m.close:
			for k := range m.cs {
				close(k)
			}
			m.cs = nil
			close(m.done)
			c <- true
			return
		}
	}
}

// offer replaces any unsent message in c with msg.
func offer(c chan []byte, msg []byte) {
	select {
	case c <- msg:
		return
	default:
	}
	select {
	case <-c:
	default:
	}
	select {
	case c <- msg:
	default:
	}
}

// SampleDetected publishes s to all clients without blocking the caller.
func (m *JointStream) SampleDetected(seq uint64, at time.Time, s *skeleton.JointSample) {
	joints, shift, quats := s.Lists()
	msg, err := json.Marshal(&JointMessage{
		Seq:         seq,
		Time:        at.UnixMilli(),
		Joints:      joints,
		Shift:       shift,
		Quaternions: quats,
	})
	if err != nil {
		log.Errorf("Failed to encode joint message: %v", err)
		return
	}
	offer(m.publish, msg)
}

// Clients returns the number of connected clients.
func (m *JointStream) Clients() int {
	r := make(chan int)
	select {
	case m.clients <- r:
		return <-r
	case <-m.done:
		return 0
	}
}

func (m *JointStream) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ws, err := m.upgrader.Upgrade(w, r, nil)
	if err != nil {
		if _, ok := err.(websocket.HandshakeError); !ok {
			log.WithField("addr", r.RemoteAddr).Errorf("Websocket handshake failed for joint stream: %v", err)
		}
		return
	}
	go m.serve(ws)
}

func (m *JointStream) serve(ws *websocket.Conn) {
	clog := log.WithField("addr", ws.RemoteAddr())
	clog.Info("connected to joint stream")
	defer func() {
		ws.Close()
		clog.Info("disconnected from joint stream")
	}()
	pingTicker := time.NewTicker(pingPeriod)
	defer pingTicker.Stop()

	msgc := make(chan []byte, 1)
	select {
	case m.addc <- msgc:
	case <-m.done:
		return
	}
	defer func() {
		select {
		case m.delc <- msgc:
		case <-m.done:
		}
	}()

	// Incoming messages are ignored but must be read for control frames.
	readDone := make(chan bool)
	go func() {
		defer close(readDone)
		for {
			if _, _, err := ws.NextReader(); err != nil {
				return
			}
		}
	}()

	for {
		select {
		case msg, ok := <-msgc:
			if !ok {
				ws.WriteControl(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseGoingAway, ""),
					time.Now().Add(writeWait))
				return
			}
			ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := ws.WriteMessage(websocket.TextMessage, msg); err != nil {
				return
			}
		case <-pingTicker.C:
			ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := ws.WriteMessage(websocket.PingMessage, []byte{}); err != nil {
				return
			}
		case <-readDone:
			return
		}
	}
}

// Close disconnects all clients. Later calls return immediately.
func (m *JointStream) Close() {
	m.closeOnce.Do(func() {
		c := make(chan bool)
		m.close <- c
		<-c
	})
}
