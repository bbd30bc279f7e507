package serve

import (
	"encoding/json"
	"errors"
	"net/http"

	"mocap/record"
	"mocap/skeleton"
)

func writeJSON(w http.ResponseWriter, v interface{}) {
	js, err := json.Marshal(v)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.Write(js)
}

// StatusServer reports a JSON snapshot of the running session.
type StatusServer struct {
	Status func() interface{}
}

func (s *StatusServer) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Invalid request method", http.StatusMethodNotAllowed)
		return
	}
	writeJSON(w, s.Status())
}

// Recordings is the part of record.Store the recordings endpoint reads.
type Recordings interface {
	Sessions() ([]record.Session, error)
	Samples(sessionUUID string) ([]skeleton.JointSample, error)
}

type RecordingEntry struct {
	ID        string
	Timestamp int64
	Width     int
	Height    int
	Facing    string
}

type RecordingsResponse struct {
	Items      []*RecordingEntry
	ItemsCount int
}

type SamplesResponse struct {
	ID      string
	Samples []*JointMessage
}

// RecordingsServer lists recorded sessions, or the samples of one session
// when an id is given.
type RecordingsServer struct {
	Store Recordings
}

func (s *RecordingsServer) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if id := r.Form.Get("id"); id != "" {
		s.serveSamples(w, id)
		return
	}

	sessions, err := s.Store.Sessions()
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	resp := &RecordingsResponse{}
	for _, sess := range sessions {
		resp.Items = append(resp.Items, &RecordingEntry{
			ID:        sess.UUID,
			Timestamp: sess.StartedAt.Unix(),
			Width:     sess.Width,
			Height:    sess.Height,
			Facing:    sess.Facing,
		})
	}
	resp.ItemsCount = len(resp.Items)
	writeJSON(w, resp)
}

func (s *RecordingsServer) serveSamples(w http.ResponseWriter, id string) {
	samples, err := s.Store.Samples(id)
	if errors.Is(err, record.ErrUnknownSession) {
		http.Error(w, err.Error(), http.StatusNotFound)
		return
	} else if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	resp := &SamplesResponse{ID: id}
	for i := range samples {
		joints, shift, quats := samples[i].Lists()
		resp.Samples = append(resp.Samples, &JointMessage{
			Seq:         uint64(i),
			Joints:      joints,
			Shift:       shift,
			Quaternions: quats,
		})
	}
	writeJSON(w, resp)
}
