package detector

import (
	"bytes"
	"context"
	"encoding/binary"
	"fmt"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	log "github.com/sirupsen/logrus"

	"mocap/skeleton"
	"mocap/video/source"
)

// Wire protocol for the remote detector service.
//
// Request: one binary websocket message, a big endian header followed by the
// pixel data:
//
//	[Seq:uint64] [Width:uint32] [Height:uint32] [Format:uint32] [Quadrant:uint32] [Data]
//
// Response: one text message holding a RemoteResponse.
const requestHeaderSize = 8 + 4*4

// RemoteSkeleton is one detected skeleton in a RemoteResponse.
type RemoteSkeleton struct {
	Joints      [][]float32 `json:"joints"`
	Shift       []float32   `json:"shift"`
	Quaternions [][]float32 `json:"quaternions"`
}

type RemoteResponse struct {
	Seq       uint64           `json:"seq"`
	Skeletons []RemoteSkeleton `json:"skeletons"`
	Error     string           `json:"error,omitempty"`
}

// EncodeRequest serializes in for the remote detector.
func EncodeRequest(in *Input) []byte {
	buf := bytes.NewBuffer(make([]byte, 0, requestHeaderSize+len(in.Data)))
	binary.Write(buf, binary.BigEndian, in.Seq)
	binary.Write(buf, binary.BigEndian, uint32(in.Width))
	binary.Write(buf, binary.BigEndian, uint32(in.Height))
	binary.Write(buf, binary.BigEndian, uint32(in.Format))
	binary.Write(buf, binary.BigEndian, uint32(in.Quadrant))
	buf.Write(in.Data)
	return buf.Bytes()
}

// DecodeRequest is the server side of EncodeRequest.
func DecodeRequest(b []byte) (*Input, error) {
	if len(b) < requestHeaderSize {
		return nil, fmt.Errorf("request too short: %d bytes", len(b))
	}
	var hdr struct {
		Seq                             uint64
		Width, Height, Format, Quadrant uint32
	}
	if err := binary.Read(bytes.NewReader(b[:requestHeaderSize]), binary.BigEndian, &hdr); err != nil {
		return nil, err
	}
	return &Input{
		Seq:      hdr.Seq,
		Width:    int(hdr.Width),
		Height:   int(hdr.Height),
		Format:   source.PixelFormat(hdr.Format),
		Quadrant: int(hdr.Quadrant),
		Data:     b[requestHeaderSize:],
	}, nil
}

// Samples converts the response to joint samples, or its error.
func (r *RemoteResponse) Samples() ([]skeleton.JointSample, error) {
	if r.Error != "" {
		return nil, fmt.Errorf("remote detector: %s", r.Error)
	}
	var out []skeleton.JointSample
	for i, s := range r.Skeletons {
		js, err := skeleton.FromDetection(s.Joints, s.Shift, s.Quaternions)
		if err != nil {
			return nil, fmt.Errorf("skeleton %d: %w", i, err)
		}
		out = append(out, js)
	}
	return out, nil
}

// Remote sends frames to a detector service over a websocket. The connection
// is dialed lazily and redialed after any error.
type Remote struct {
	URL    string
	Dialer *websocket.Dialer

	conn *websocket.Conn
	l    sync.Mutex
}

func NewRemote(url string) *Remote {
	return &Remote{
		URL:    url,
		Dialer: websocket.DefaultDialer,
	}
}

func (r *Remote) Detect(ctx context.Context, in *Input) <-chan Result {
	c := make(chan Result, 1)
	go func() {
		samples, err := r.roundTrip(ctx, in)
		if err != nil {
			c <- Failure(err)
			return
		}
		c <- Success(samples)
	}()
	return c
}

func (r *Remote) roundTrip(ctx context.Context, in *Input) ([]skeleton.JointSample, error) {
	r.l.Lock()
	defer r.l.Unlock()

	if r.conn == nil {
		conn, _, err := r.Dialer.DialContext(ctx, r.URL, nil)
		if err != nil {
			return nil, fmt.Errorf("dial %v: %w", r.URL, err)
		}
		log.WithField("url", r.URL).Info("connected to remote detector")
		r.conn = conn
	}

	conn := r.conn
	deadline, ok := ctx.Deadline()
	if !ok {
		deadline = time.Time{}
	}
	conn.SetWriteDeadline(deadline)
	conn.SetReadDeadline(deadline)

	// Unblock the read if ctx is cancelled without a deadline. The closure
	// holds its own reference since reset clears r.conn.
	stop := context.AfterFunc(ctx, func() {
		conn.SetReadDeadline(time.Now())
	})
	defer stop()

	if err := conn.WriteMessage(websocket.BinaryMessage, EncodeRequest(in)); err != nil {
		stop()
		r.reset()
		return nil, fmt.Errorf("send frame %d: %w", in.Seq, err)
	}

	for {
		var resp RemoteResponse
		if err := conn.ReadJSON(&resp); err != nil {
			stop()
			r.reset()
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			return nil, fmt.Errorf("read result for frame %d: %w", in.Seq, err)
		}
		if resp.Seq != in.Seq {
			// Late answer to a request that already timed out.
			log.Debugf("Discarding remote result for frame %d, want %d", resp.Seq, in.Seq)
			continue
		}
		if !stop() {
			// Cancellation raced the answer and may have cut the
			// connection's read deadline short.
			r.reset()
		}
		return resp.Samples()
	}
}

func (r *Remote) reset() {
	if r.conn != nil {
		r.conn.Close()
		r.conn = nil
	}
}

func (r *Remote) Close() error {
	r.l.Lock()
	defer r.l.Unlock()
	if r.conn == nil {
		return nil
	}
	r.conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(time.Second))
	err := r.conn.Close()
	r.conn = nil
	return err
}
