package media

import (
	"bytes"
	"errors"
	"image"
	"sync"
	"time"

	"tabclip/internal/schedule"

	"github.com/disintegration/imaging"
)

// RecorderState 录制器状态
type RecorderState string

const (
	RecorderStopped   RecorderState = "stopped"
	RecorderRecording RecorderState = "recording"
)

var ErrAlreadyRecording = errors.New("media: recorder already recording")

// Snapshotter 录制器的输入：画布的实时捕获输出
type Snapshotter interface {
	Snapshot() image.Image
}

// RecorderOptions 录制参数
type RecorderOptions struct {
	FPS         int
	Timeslice   time.Duration
	JPEGQuality int
	Scheduler   schedule.Scheduler
}

// Recorder Motion-JPEG 录制器：按固定帧率采样画布，按时间片产出数据块
type Recorder struct {
	// deliver 从取出数据块到 ondata 返回期间持有，保证数据块按序交付且先于 onstop
	deliver sync.Mutex
	mu      sync.Mutex
	src     Snapshotter
	opts    RecorderOptions
	state   RecorderState
	pending bytes.Buffer
	frames  int64

	captureTask schedule.Task
	sliceTask   schedule.Task

	ondata func([]byte)
	onstop func()
}

// NewRecorder 创建录制器，初始为 stopped
func NewRecorder(src Snapshotter, opts RecorderOptions) *Recorder {
	if opts.FPS <= 0 {
		opts.FPS = 30
	}
	if opts.Timeslice <= 0 {
		opts.Timeslice = time.Second
	}
	if opts.JPEGQuality <= 0 {
		opts.JPEGQuality = 80
	}
	if opts.Scheduler == nil {
		opts.Scheduler = schedule.Real{}
	}
	return &Recorder{src: src, opts: opts, state: RecorderStopped}
}

// OnDataAvailable 注册数据块回调
func (r *Recorder) OnDataAvailable(fn func([]byte)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.ondata = fn
}

// OnStop 注册停止回调，在最后一个数据块之后调用
func (r *Recorder) OnStop(fn func()) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.onstop = fn
}

// State 当前状态
func (r *Recorder) State() RecorderState {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state
}

// Frames 已编码帧数
func (r *Recorder) Frames() int64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.frames
}

// Start 开始录制
func (r *Recorder) Start() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.state == RecorderRecording {
		return ErrAlreadyRecording
	}
	r.state = RecorderRecording
	r.pending.Reset()
	r.captureTask = r.opts.Scheduler.Every(time.Second/time.Duration(r.opts.FPS), r.capture)
	r.sliceTask = r.opts.Scheduler.Every(r.opts.Timeslice, r.slice)
	return nil
}

// Stop 停止录制：交付剩余数据后触发 onstop，可重复调用
func (r *Recorder) Stop() {
	r.deliver.Lock()
	defer r.deliver.Unlock()

	r.mu.Lock()
	if r.state != RecorderRecording {
		r.mu.Unlock()
		return
	}
	r.state = RecorderStopped
	r.captureTask.Cancel()
	r.sliceTask.Cancel()
	chunk := r.takeLocked()
	ondata, onstop := r.ondata, r.onstop
	r.mu.Unlock()

	if ondata != nil {
		ondata(chunk)
	}
	if onstop != nil {
		onstop()
	}
}

func (r *Recorder) capture() {
	r.mu.Lock()
	if r.state != RecorderRecording {
		r.mu.Unlock()
		return
	}
	r.mu.Unlock()

	img := r.src.Snapshot()
	if img == nil {
		return
	}
	var buf bytes.Buffer
	if err := imaging.Encode(&buf, img, imaging.JPEG, imaging.JPEGQuality(r.opts.JPEGQuality)); err != nil {
		return
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.state != RecorderRecording {
		return
	}
	r.pending.Write(buf.Bytes())
	r.frames++
}

func (r *Recorder) slice() {
	r.deliver.Lock()
	defer r.deliver.Unlock()

	r.mu.Lock()
	if r.state != RecorderRecording {
		r.mu.Unlock()
		return
	}
	chunk := r.takeLocked()
	ondata := r.ondata
	r.mu.Unlock()

	if ondata != nil {
		ondata(chunk)
	}
}

func (r *Recorder) takeLocked() []byte {
	chunk := make([]byte, r.pending.Len())
	copy(chunk, r.pending.Bytes())
	r.pending.Reset()
	return chunk
}
