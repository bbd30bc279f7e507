package record

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/go-gl/mathgl/mgl32"
	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mocap/skeleton"
)

func testSample(base float32) *skeleton.JointSample {
	s := &skeleton.JointSample{Shift: mgl32.Vec3{0.5, -0.25, 3}}
	for i := range s.Joints {
		f := base + float32(i)
		s.Joints[i] = mgl32.Vec3{f, f * 2, -f}
	}
	s.Quaternions = []mgl32.Quat{mgl32.QuatIdent(), {W: 0, V: mgl32.Vec3{1, 0, 0}}}
	return s
}

func TestSampleEncodeDecode(t *testing.T) {
	at := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	in := testSample(1)
	rec, err := EncodeSample(7, at, in)
	require.NoError(t, err)
	assert.Equal(t, uint64(7), rec.Seq)
	assert.Equal(t, at, rec.CapturedAt)
	assert.Equal(t, "[0.5,-0.25,3]", rec.Shift)

	out, err := rec.Decode()
	require.NoError(t, err)
	if diff := cmp.Diff(*in, out); diff != "" {
		t.Errorf("decoded sample mismatch (-want +got):\n%s", diff)
	}
}

func TestSampleDecodeWithoutQuaternions(t *testing.T) {
	in := testSample(0)
	in.Quaternions = nil
	rec, err := EncodeSample(1, time.Now(), in)
	require.NoError(t, err)
	assert.Equal(t, "null", rec.Quaternions)

	out, err := rec.Decode()
	require.NoError(t, err)
	assert.Empty(t, out.Quaternions)
	assert.Equal(t, in.Joints, out.Joints)
}

func TestSampleDecodeErrors(t *testing.T) {
	rec := Sample{ID: 3, Joints: "not json", Shift: "[]"}
	_, err := rec.Decode()
	assert.ErrorContains(t, err, "sample 3 joints")

	rec = Sample{ID: 4, Joints: "[[1,2,3]]", Shift: "[]"}
	_, err = rec.Decode()
	assert.ErrorIs(t, err, skeleton.ErrShortSample)
}

type fakeWriter struct {
	l       sync.Mutex
	batches [][]Sample
	err     error
	wrote   chan int
}

func newFakeWriter() *fakeWriter {
	return &fakeWriter{wrote: make(chan int, 100)}
}

func (w *fakeWriter) AddSamples(sessionID uint, samples []Sample) error {
	w.l.Lock()
	defer w.l.Unlock()
	if w.err != nil {
		return w.err
	}
	w.batches = append(w.batches, append([]Sample(nil), samples...))
	w.wrote <- len(samples)
	return nil
}

func (w *fakeWriter) seqs() []uint64 {
	w.l.Lock()
	defer w.l.Unlock()
	var out []uint64
	for _, b := range w.batches {
		for _, s := range b {
			out = append(out, s.Seq)
		}
	}
	return out
}

func TestRecorderFlushesFullBatches(t *testing.T) {
	w := newFakeWriter()
	r := NewRecorder(w, 1, RecorderOptions{BatchSize: 3, FlushInterval: time.Hour})
	for i := 1; i <= 3; i++ {
		r.SampleDetected(uint64(i), time.Now(), testSample(float32(i)))
	}
	select {
	case n := <-w.wrote:
		assert.Equal(t, 3, n)
	case <-time.After(5 * time.Second):
		t.Fatal("batch was not written")
	}
	r.Close()
	assert.Equal(t, []uint64{1, 2, 3}, w.seqs())
	assert.Equal(t, uint64(3), r.Written())
}

func TestRecorderFlushesOnInterval(t *testing.T) {
	w := newFakeWriter()
	r := NewRecorder(w, 1, RecorderOptions{BatchSize: 100, FlushInterval: 10 * time.Millisecond})
	defer r.Close()
	r.SampleDetected(9, time.Now(), testSample(0))
	select {
	case n := <-w.wrote:
		assert.Equal(t, 1, n)
	case <-time.After(5 * time.Second):
		t.Fatal("partial batch was not flushed")
	}
}

func TestRecorderCloseFlushesPending(t *testing.T) {
	w := newFakeWriter()
	r := NewRecorder(w, 1, RecorderOptions{BatchSize: 100, FlushInterval: time.Hour})
	for i := 1; i <= 5; i++ {
		r.SampleDetected(uint64(i), time.Now(), testSample(0))
	}
	r.Close()
	assert.Equal(t, []uint64{1, 2, 3, 4, 5}, w.seqs())
}

func TestRecorderCountsWriteFailures(t *testing.T) {
	w := newFakeWriter()
	w.err = errors.New("db down")
	r := NewRecorder(w, 1, RecorderOptions{BatchSize: 2, FlushInterval: time.Hour})
	r.SampleDetected(1, time.Now(), testSample(0))
	r.SampleDetected(2, time.Now(), testSample(0))
	r.Close()
	assert.Equal(t, uint64(2), r.Dropped())
	assert.Zero(t, r.Written())
}

func TestRecorderCloseTwice(t *testing.T) {
	w := newFakeWriter()
	r := NewRecorder(w, 1, RecorderOptions{})
	r.SampleDetected(1, time.Now(), testSample(0))
	r.Close()

	done := make(chan bool)
	go func() {
		r.Close()
		r.SampleDetected(2, time.Now(), testSample(0))
		done <- true
	}()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("second Close blocked")
	}
	assert.Equal(t, []uint64{1}, w.seqs())
}
