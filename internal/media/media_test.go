package media

import (
	"bytes"
	"image"
	"image/color"
	"sync"
	"testing"
	"time"

	"tabclip/internal/schedule"

	"github.com/disintegration/imaging"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type chanStream struct {
	frames chan Frame
	done   chan struct{}
	once   sync.Once
}

func newChanStream() *chanStream {
	return &chanStream{frames: make(chan Frame, 4), done: make(chan struct{})}
}

func (s *chanStream) Frames() <-chan Frame  { return s.frames }
func (s *chanStream) Done() <-chan struct{} { return s.done }
func (s *chanStream) Stop()                 { s.once.Do(func() { close(s.done) }) }

// quadrants 生成左右两半不同颜色的测试图
func quadrants(w, h int) *image.NRGBA {
	img := imaging.New(w, h, color.NRGBA{R: 255, A: 255})
	for y := 0; y < h; y++ {
		for x := w / 2; x < w; x++ {
			img.SetNRGBA(x, y, color.NRGBA{B: 255, A: 255})
		}
	}
	return img
}

func encodePNG(t *testing.T, img image.Image) []byte {
	var buf bytes.Buffer
	require.NoError(t, imaging.Encode(&buf, img, imaging.PNG))
	return buf.Bytes()
}

func TestSurface_FixedSizeRegardlessOfSource(t *testing.T) {
	s := NewSurface(300, 200)
	w, h := s.Size()
	assert.Equal(t, 300, w)
	assert.Equal(t, 200, h)

	require.True(t, s.Context().DrawImage(quadrants(1280, 800), 10, 20, 300, 200))
	snap := s.Snapshot()
	assert.Equal(t, image.Rect(0, 0, 300, 200), snap.Bounds())
}

func TestSurface_DrawCopiesRequestedRegion(t *testing.T) {
	src := quadrants(100, 10)
	s := NewSurface(10, 10)

	require.True(t, s.Context().DrawImage(src, 45, 0, 10, 10))
	snap := imaging.Clone(s.Snapshot())
	assert.Equal(t, color.NRGBA{R: 255, A: 255}, snap.NRGBAAt(0, 5))
	assert.Equal(t, color.NRGBA{B: 255, A: 255}, snap.NRGBAAt(9, 5))
}

func TestSurface_RegionOutsideSourceIsTransparent(t *testing.T) {
	src := quadrants(20, 20)
	s := NewSurface(10, 10)

	require.True(t, s.Context().DrawImage(src, 15, 15, 10, 10))
	snap := imaging.Clone(s.Snapshot())
	assert.Equal(t, color.NRGBA{B: 255, A: 255}, snap.NRGBAAt(0, 0))
	assert.Equal(t, uint8(0), snap.NRGBAAt(9, 9).A)
}

func TestSurface_ReleasedIsNoop(t *testing.T) {
	s := NewSurface(4, 4)
	ctx := s.Context()
	s.Release()

	assert.Nil(t, s.Context())
	assert.Nil(t, s.Snapshot())
	assert.False(t, ctx.DrawImage(quadrants(8, 8), 0, 0, 4, 4))
}

func TestSource_KeepsLatestFrame(t *testing.T) {
	st := newChanStream()
	src := NewSource(st)
	defer src.Release()

	assert.Nil(t, src.Frame())
	st.frames <- Frame{Data: encodePNG(t, quadrants(8, 4))}
	require.Eventually(t, func() bool { return src.Received() == 1 }, time.Second, time.Millisecond)

	img := src.Frame()
	require.NotNil(t, img)
	assert.Equal(t, image.Rect(0, 0, 8, 4), img.Bounds())
}

func TestSource_ReleaseIsIdempotent(t *testing.T) {
	src := NewSource(newChanStream())
	src.Release()
	src.Release()
	assert.True(t, src.Released())
	assert.Nil(t, src.Frame())
}

type fixedSnap struct{ img image.Image }

func (f fixedSnap) Snapshot() image.Image { return f.img }

func TestRecorder_ChunksPerTimeslice(t *testing.T) {
	sched := schedule.NewManual()
	rec := NewRecorder(fixedSnap{quadrants(16, 16)}, RecorderOptions{
		FPS: 10, Timeslice: 500 * time.Millisecond, Scheduler: sched,
	})
	var chunks [][]byte
	rec.OnDataAvailable(func(b []byte) { chunks = append(chunks, b) })
	var stopped int
	rec.OnStop(func() { stopped++ })

	require.NoError(t, rec.Start())
	assert.Equal(t, RecorderRecording, rec.State())
	assert.ErrorIs(t, rec.Start(), ErrAlreadyRecording)

	sched.Advance(time.Second)
	require.Len(t, chunks, 2)
	assert.Equal(t, int64(10), rec.Frames())

	rec.Stop()
	rec.Stop()
	assert.Equal(t, RecorderStopped, rec.State())
	assert.Equal(t, 1, stopped)
	assert.Len(t, chunks, 3)
	assert.Empty(t, chunks[2])
	assert.Zero(t, sched.Active())

	img, err := imaging.Decode(bytes.NewReader(chunks[0]))
	require.NoError(t, err)
	assert.Equal(t, image.Rect(0, 0, 16, 16), img.Bounds())
}

func TestRecorder_SkipsWhenSurfaceReleased(t *testing.T) {
	sched := schedule.NewManual()
	rec := NewRecorder(fixedSnap{}, RecorderOptions{FPS: 30, Scheduler: sched})
	var total int
	rec.OnDataAvailable(func(b []byte) { total += len(b) })

	require.NoError(t, rec.Start())
	sched.Advance(2 * time.Second)
	rec.Stop()

	assert.Zero(t, total)
	assert.Zero(t, rec.Frames())
}

func TestRecorder_StopWaitsForInFlightChunk(t *testing.T) {
	sched := schedule.NewManual()
	rec := NewRecorder(fixedSnap{quadrants(8, 8)}, RecorderOptions{
		FPS: 10, Timeslice: 500 * time.Millisecond, Scheduler: sched,
	})

	var mu sync.Mutex
	var events []string
	record := func(ev string) {
		mu.Lock()
		defer mu.Unlock()
		events = append(events, ev)
	}
	snapshot := func() []string {
		mu.Lock()
		defer mu.Unlock()
		return append([]string(nil), events...)
	}

	entered := make(chan struct{})
	release := make(chan struct{})
	var first sync.Once
	rec.OnDataAvailable(func(b []byte) {
		blocked := false
		first.Do(func() { blocked = true })
		if blocked {
			close(entered)
			<-release
		}
		record("data")
	})
	rec.OnStop(func() { record("stop") })
	require.NoError(t, rec.Start())

	sliced := make(chan struct{})
	go func() {
		sched.Advance(500 * time.Millisecond)
		close(sliced)
	}()
	<-entered

	stopped := make(chan struct{})
	go func() {
		rec.Stop()
		close(stopped)
	}()

	select {
	case <-stopped:
		t.Fatal("Stop returned while a chunk was still being delivered")
	case <-time.After(50 * time.Millisecond):
	}
	assert.Empty(t, snapshot())

	close(release)
	<-sliced
	<-stopped
	assert.Equal(t, []string{"data", "data", "stop"}, snapshot())
}
