package detector

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mocap/skeleton"
	"mocap/video/source"
)

// fakeDetector answers every request with one skeleton whose joints are all
// at (width, height, quadrant).
func fakeDetector(t *testing.T, fail bool) *httptest.Server {
	upgrader := websocket.Upgrader{}
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ws, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			t.Errorf("upgrade: %v", err)
			return
		}
		defer ws.Close()
		for {
			_, msg, err := ws.ReadMessage()
			if err != nil {
				return
			}
			in, err := DecodeRequest(msg)
			if err != nil {
				t.Errorf("decode: %v", err)
				return
			}
			resp := RemoteResponse{Seq: in.Seq}
			if fail {
				resp.Error = "engine not licensed"
			} else {
				joints := make([][]float32, skeleton.JointCount)
				for i := range joints {
					joints[i] = []float32{float32(in.Width), float32(in.Height), float32(in.Quadrant)}
				}
				resp.Skeletons = []RemoteSkeleton{{Joints: joints, Shift: []float32{0, 0, float32(len(in.Data))}}}
			}
			if err := ws.WriteJSON(resp); err != nil {
				return
			}
		}
	}))
}

func wsURL(s *httptest.Server) string {
	return "ws" + strings.TrimPrefix(s.URL, "http")
}

func TestRequestEncoding(t *testing.T) {
	in := &Input{Seq: 9, Width: 640, Height: 480, Format: source.FormatNV21, Quadrant: 3, Data: []byte{1, 2, 3}}
	out, err := DecodeRequest(EncodeRequest(in))
	require.NoError(t, err)
	assert.Equal(t, in, out)

	_, err = DecodeRequest([]byte{1, 2})
	assert.Error(t, err)
}

func TestRemoteRoundTrip(t *testing.T) {
	srv := fakeDetector(t, false)
	defer srv.Close()

	r := NewRemote(wsURL(srv))
	defer r.Close()

	for seq := uint64(1); seq <= 2; seq++ {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		res := <-r.Detect(ctx, &Input{Seq: seq, Width: 4, Height: 2, Quadrant: 1, Data: make([]byte, 12)})
		cancel()
		require.NoError(t, res.Err)
		require.Len(t, res.Samples, 1)
		s := res.Samples[0]
		assert.Equal(t, float32(4), s.Joints[0].X())
		assert.Equal(t, float32(2), s.Joints[23].Y())
		assert.Equal(t, float32(1), s.Joints[10].Z())
		assert.Equal(t, float32(12), s.Shift.Z())
	}
}

func TestRemoteError(t *testing.T) {
	srv := fakeDetector(t, true)
	defer srv.Close()

	r := NewRemote(wsURL(srv))
	defer r.Close()

	res := <-r.Detect(context.Background(), &Input{Seq: 1, Width: 2, Height: 2, Data: make([]byte, 6)})
	assert.ErrorContains(t, res.Err, "engine not licensed")
}

func TestRemoteDialFailure(t *testing.T) {
	srv := fakeDetector(t, false)
	url := wsURL(srv)
	srv.Close()

	r := NewRemote(url)
	res := <-r.Detect(context.Background(), &Input{Seq: 1})
	assert.Error(t, res.Err)
	assert.NoError(t, r.Close())
}

// silentDetector accepts connections and requests but never answers.
func silentDetector(t *testing.T) *httptest.Server {
	upgrader := websocket.Upgrader{}
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ws, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer ws.Close()
		for {
			if _, _, err := ws.ReadMessage(); err != nil {
				return
			}
		}
	}))
}

func TestRemoteTimeoutsAgainstSilentDetector(t *testing.T) {
	srv := silentDetector(t)
	defer srv.Close()

	r := NewRemote(wsURL(srv))
	defer r.Close()

	for seq := uint64(1); seq <= 200; seq++ {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Millisecond)
		res := <-r.Detect(ctx, &Input{Seq: seq, Width: 2, Height: 2, Data: make([]byte, 6)})
		cancel()
		require.Error(t, res.Err)
	}
}

func TestRemoteCancelWithoutDeadline(t *testing.T) {
	srv := silentDetector(t)
	defer srv.Close()

	r := NewRemote(wsURL(srv))
	defer r.Close()

	for seq := uint64(1); seq <= 20; seq++ {
		ctx, cancel := context.WithCancel(context.Background())
		c := r.Detect(ctx, &Input{Seq: seq, Width: 2, Height: 2, Data: make([]byte, 6)})
		time.AfterFunc(time.Millisecond, cancel)
		select {
		case res := <-c:
			assert.Error(t, res.Err)
		case <-time.After(5 * time.Second):
			t.Fatal("cancelled request did not return")
		}
		cancel()
	}
}
