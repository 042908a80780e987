// Package capture 实现区域录制会话控制器：获取视频流、按固定帧率裁剪合成、
// 录制并在任意终止触发时按固定顺序清理资源并输出文件。
package capture

import (
	"context"
	"errors"
	"math"
	"sync"
	"sync/atomic"
	"time"

	"tabclip/internal/logger"
	"tabclip/internal/media"
	"tabclip/internal/metrics"
	"tabclip/internal/protocol"
	"tabclip/internal/schedule"
	"tabclip/internal/session"
	"tabclip/internal/storage"
	"tabclip/pkg/model"

	"github.com/dustin/go-humanize"
)

var (
	ErrInvalidRect       = errors.New("capture: rect has negative size")
	ErrRectOutOfBounds   = errors.New("capture: rect exceeds viewport")
	ErrAcquisitionDenied = errors.New("capture: stream acquisition denied")
	ErrResourceReleased  = errors.New("capture: resource already released")
	ErrEmptyRecording    = errors.New("capture: no chunks recorded")
	ErrNoTab             = errors.New("capture: no current tab")
	ErrClosed            = errors.New("capture: controller closed")
)

// Acquirer 获取标签页视频流；阻塞直到平台接受或拒绝，不设超时
type Acquirer interface {
	Acquire(ctx context.Context, tab model.TabID, vp model.Viewport) (media.Stream, error)
}

// Messenger 向标签页发送消息；实现不得阻塞调用方
type Messenger interface {
	SendToTab(tab model.TabID, msg protocol.Message) error
}

// BlobStore 录制数据的临时句柄
type BlobStore interface {
	Create(data []byte, mediaType string) (storage.Handle, error)
	Revoke(h storage.Handle) error
}

// Downloader 异步下载
type Downloader interface {
	Download(ctx context.Context, req storage.DownloadRequest, done func(model.Download, error))
}

// Options 控制器参数
type Options struct {
	FPS         int
	Timeslice   time.Duration
	JPEGQuality int
	Filename    string
	MediaType   string
	Scheduler   schedule.Scheduler
	Logger      logger.Logger
}

// Deps 控制器依赖的外部协作者
type Deps struct {
	Acquirer   Acquirer
	Messenger  Messenger
	Blobs      BlobStore
	Downloader Downloader
}

// Controller 全局唯一的录制会话控制器
type Controller struct {
	mu      sync.Mutex
	state   model.State
	gen     uint64
	current model.TabID
	overlay model.TabID
	sess    *session.Session
	closed  bool

	frames atomic.Int64

	deps Deps
	opts Options
	log  logger.Logger

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	subMu sync.Mutex
	subs  map[chan model.Event]struct{}
}

// New 创建控制器，初始为 Idle
func New(deps Deps, opts Options) *Controller {
	if opts.FPS <= 0 {
		opts.FPS = 30
	}
	if opts.Timeslice <= 0 {
		opts.Timeslice = time.Second
	}
	if opts.Filename == "" {
		opts.Filename = "rec.mjpeg"
	}
	if opts.MediaType == "" {
		opts.MediaType = "video/x-motion-jpeg"
	}
	if opts.Scheduler == nil {
		opts.Scheduler = schedule.Real{}
	}
	if opts.Logger == nil {
		opts.Logger = logger.NewNop()
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Controller{
		state:  model.StateIdle,
		deps:   deps,
		opts:   opts,
		log:    opts.Logger.With("component", "capture"),
		ctx:    ctx,
		cancel: cancel,
		subs:   make(map[chan model.Event]struct{}),
	}
}

func (c *Controller) interval() time.Duration {
	return time.Second / time.Duration(c.opts.FPS)
}

// SetCurrentTab 设置当前关联的标签页（不影响正在进行的会话）
func (c *Controller) SetCurrentTab(tab model.TabID) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.current = tab
}

// StartCapture 处理 start-capture 请求：先清理已有会话，再异步获取视频流
func (c *Controller) StartCapture(req model.CaptureRequest) error {
	if !req.Rect.Valid() {
		return ErrInvalidRect
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return ErrClosed
	}
	if req.Rect.Empty() {
		c.overlay = req.Origin
		c.log.Info("选区面积为零，忽略", "tab", req.Origin, "rect", req.Rect)
		return nil
	}
	if !req.Rect.Within(req.Viewport) {
		c.log.Warn("选区超出视口，拒绝", "tab", req.Origin, "rect", req.Rect, "viewport", req.Viewport)
		return ErrRectOutOfBounds
	}

	c.teardownLocked(model.ReasonSuperseded, req.Origin)

	c.gen++
	gen := c.gen
	c.state = model.StateStarting
	c.sess = session.New(gen, req)
	c.overlay = req.Origin
	c.log.Info("开始获取视频流", "tab", req.Origin, "rect", req.Rect, "viewport", req.Viewport, "generation", gen)

	c.wg.Add(1)
	go c.acquire(gen, req)
	return nil
}

func (c *Controller) acquire(gen uint64, req model.CaptureRequest) {
	defer c.wg.Done()
	stream, err := c.deps.Acquirer.Acquire(c.ctx, req.Origin, req.Viewport)

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.gen != gen || c.state != model.StateStarting {
		if err == nil && stream != nil {
			stream.Stop()
			metrics.AcquisitionsSuperseded.Inc()
			c.log.Info("会话已取消，丢弃迟到的视频流", "generation", gen, "current", c.gen)
		}
		return
	}
	if err != nil || stream == nil {
		if err == nil {
			err = ErrAcquisitionDenied
		}
		c.state = model.StateIdle
		c.sess = nil
		metrics.AcquisitionsDenied.Inc()
		c.log.Warn("获取视频流失败", "tab", req.Origin, "error", err)
		c.publish(model.Event{Type: "denied", Tab: req.Origin, Error: err.Error()})
		return
	}
	c.activateLocked(stream)
}

// activateLocked Starting -> Active 的进入动作
func (c *Controller) activateLocked(stream media.Stream) {
	s := c.sess
	c.current = s.TabID

	s.Stream = stream
	s.Source = media.NewSource(stream)
	s.Surface = media.NewSurface(s.Rect.Width, s.Rect.Height)
	s.Recorder = media.NewRecorder(s.Surface, media.RecorderOptions{
		FPS:         c.opts.FPS,
		Timeslice:   c.opts.Timeslice,
		JPEGQuality: c.opts.JPEGQuality,
		Scheduler:   c.opts.Scheduler,
	})

	s.Chunks.Clear()
	chunks := s.Chunks
	s.Recorder.OnDataAvailable(func(b []byte) {
		if chunks.Append(b) {
			metrics.ChunksRecorded.Inc()
			metrics.ChunkBytes.Add(float64(len(b)))
		}
	})

	c.wg.Add(1)
	go c.watchInactive(s.Generation, stream)

	c.frames.Store(0)
	s.Timer = c.opts.Scheduler.Every(c.interval(), func() { c.composite(s) })

	if err := s.Recorder.Start(); err != nil {
		c.log.Error("启动录制器失败", "error", err)
	}
	s.StartedAt = time.Now()
	c.state = model.StateActive

	metrics.SessionsStarted.Inc()
	metrics.SessionActive.Set(1)
	c.log.Info("录制开始", "session", s.ID, "tab", s.TabID, "surface", [2]int{s.Rect.Width, s.Rect.Height})
	c.publish(model.Event{Type: "started", Session: s.ID, Tab: s.TabID})
}

func (c *Controller) watchInactive(gen uint64, stream media.Stream) {
	defer c.wg.Done()
	<-stream.Done()

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.gen != gen || c.state != model.StateActive {
		return
	}
	c.log.Info("视频流已失效")
	c.teardownLocked(model.ReasonInactive, "")
}

// composite 一次合成：把源帧中 rect 区域缩放复制到整个画布
func (c *Controller) composite(s *session.Session) {
	c.mu.Lock()
	src, surf := s.Source, s.Surface
	c.mu.Unlock()

	if err := c.drawFrame(s, src, surf); err == nil {
		c.frames.Add(1)
		metrics.FramesComposited.Inc()
	}
}

func (c *Controller) drawFrame(s *session.Session, src *media.Source, surf *media.Surface) error {
	if src == nil || surf == nil {
		return ErrResourceReleased
	}
	ctx := surf.Context()
	if ctx == nil {
		return ErrResourceReleased
	}
	frame := src.Frame()
	if frame == nil {
		return ErrResourceReleased
	}
	sx, sy, sw, sh := SourceRegion(s.Rect, s.Viewport, frame.Bounds().Dx(), frame.Bounds().Dy())
	if !ctx.DrawImage(frame, sx, sy, sw, sh) {
		return ErrResourceReleased
	}
	return nil
}

// SourceRegion 将视口坐标下的选区换算为帧像素坐标；帧与视口同尺寸时原样返回
func SourceRegion(r model.Rect, vp model.Viewport, frameW, frameH int) (x, y, w, h int) {
	fx, fy := 1.0, 1.0
	if vp.Width > 0 && frameW > 0 {
		fx = float64(frameW) / float64(vp.Width)
	}
	if vp.Height > 0 && frameH > 0 {
		fy = float64(frameH) / float64(vp.Height)
	}
	x = int(math.Round(float64(r.Left) * fx))
	y = int(math.Round(float64(r.Top) * fy))
	w = max(1, int(math.Round(float64(r.Width)*fx)))
	h = max(1, int(math.Round(float64(r.Height)*fy)))
	return x, y, w, h
}

// Stop 终止当前会话，可重复调用
func (c *Controller) Stop(reason model.StopReason) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.teardownLocked(reason, "")
}

// Toggle 录制中则停止，否则在当前标签页显示选区覆盖层
func (c *Controller) Toggle() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return ErrClosed
	}
	if c.state == model.StateActive || c.state == model.StateStarting {
		c.teardownLocked(model.ReasonToggle, "")
		return nil
	}
	if c.current == "" {
		return ErrNoTab
	}
	if err := c.deps.Messenger.SendToTab(c.current, protocol.ShowOverlay()); err != nil {
		c.log.Warn("显示覆盖层失败", "tab", c.current, "error", err)
		return err
	}
	c.overlay = c.current
	return nil
}

// TabActivated 切换标签页：停止录制并关联新标签页
func (c *Controller) TabActivated(tab model.TabID) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.teardownLocked(model.ReasonTabSwitch, "")
	c.current = tab
}

// FocusChanged 窗口焦点变化：无条件停止
func (c *Controller) FocusChanged() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.teardownLocked(model.ReasonWindowBlur, "")
}

// teardownLocked Stopping -> Idle 的固定顺序清理；keep 为不需要关闭覆盖层的标签页
func (c *Controller) teardownLocked(reason model.StopReason, keep model.TabID) bool {
	s := c.sess
	if s == nil && c.overlay == "" {
		return false
	}
	if s != nil {
		c.state = model.StateStopping
	}

	// 1. 关闭覆盖层
	var targets []model.TabID
	if s != nil && s.TabID != "" {
		targets = append(targets, s.TabID)
	}
	if c.overlay != "" && (s == nil || c.overlay != s.TabID) {
		targets = append(targets, c.overlay)
	}
	for _, tab := range targets {
		if tab == keep {
			continue
		}
		if err := c.deps.Messenger.SendToTab(tab, protocol.CloseOverlay()); err != nil {
			c.log.Debug("关闭覆盖层失败", "tab", tab, "error", err)
		}
	}
	c.overlay = ""

	if s == nil {
		return true
	}

	// 2. 源元素
	if s.Source != nil {
		s.Source.Release()
		s.Source = nil
	}
	// 3. 画布
	if s.Surface != nil {
		s.Surface.Release()
		s.Surface = nil
	}
	// 4. 视频流
	if s.Stream != nil {
		s.Stream.Stop()
		s.Stream = nil
	}
	// 5. 录制器
	if s.Recorder != nil {
		rec := s.Recorder
		var once sync.Once
		rec.OnStop(func() { once.Do(func() { c.emit(s) }) })
		rec.Stop()
		s.Recorder = nil
	}
	// 6. 合成任务
	if s.Timer != nil {
		s.Timer.Cancel()
		s.Timer = nil
	}

	wasActive := !s.StartedAt.IsZero()
	c.sess = nil
	c.state = model.StateIdle
	metrics.SessionActive.Set(0)
	metrics.SessionsStopped.WithLabelValues(string(reason)).Inc()
	c.log.Info("会话已停止", "session", s.ID, "reason", reason, "active", wasActive, "frames", c.frames.Load())
	c.publish(model.Event{Type: "stopped", Session: s.ID, Tab: s.TabID, Reason: reason})
	return true
}

// emit 录制器停止后把数据块合并成一个文件并下载
func (c *Controller) emit(s *session.Session) {
	chunks := s.Chunks
	n := chunks.Len()
	if n == 0 {
		metrics.DownloadsTotal.WithLabelValues("empty").Inc()
		c.log.Info("没有录制数据，跳过下载", "session", s.ID, "error", ErrEmptyRecording)
		return
	}
	data := chunks.Bytes()
	h, err := c.deps.Blobs.Create(data, c.opts.MediaType)
	if err != nil {
		metrics.DownloadsTotal.WithLabelValues("error").Inc()
		c.log.Error("创建 blob 失败", "session", s.ID, "error", err)
		chunks.Clear()
		return
	}
	c.log.Debug("开始下载", "session", s.ID, "chunks", n, "size", humanize.Bytes(uint64(len(data))))

	c.wg.Add(1)
	req := storage.DownloadRequest{
		Handle:   h,
		Filename: c.opts.Filename,
		Session:  s.ID,
		Tab:      s.TabID,
		Rect:     s.Rect,
		Chunks:   n,
	}
	c.deps.Downloader.Download(context.WithoutCancel(c.ctx), req, func(d model.Download, err error) {
		defer c.wg.Done()
		chunks.Clear()
		if rerr := c.deps.Blobs.Revoke(h); rerr != nil {
			c.log.Warn("释放 blob 失败", "error", rerr)
		}
		if err != nil {
			metrics.DownloadsTotal.WithLabelValues("error").Inc()
			c.publish(model.Event{Type: "download-failed", Session: s.ID, Tab: s.TabID, Error: err.Error()})
			return
		}
		metrics.DownloadsTotal.WithLabelValues("ok").Inc()
		metrics.DownloadBytes.Observe(float64(d.Size))
		c.publish(model.Event{Type: "downloaded", Session: s.ID, Tab: s.TabID, File: d.Path})
	})
}

// Status 当前状态快照
func (c *Controller) Status() model.Status {
	c.mu.Lock()
	defer c.mu.Unlock()
	st := model.Status{State: c.state, Generation: c.gen, Tab: c.current}
	if s := c.sess; s != nil {
		r := s.Rect
		st.Session = s.ID
		st.Tab = s.TabID
		st.Rect = &r
		st.Chunks = s.Chunks.Len()
		st.StartedAt = s.StartedAt
		if c.state == model.StateActive {
			st.Frames = c.frames.Load()
		}
	}
	return st
}

// Subscribe 订阅会话事件；返回的函数用于取消订阅
func (c *Controller) Subscribe(buf int) (<-chan model.Event, func()) {
	if buf <= 0 {
		buf = 16
	}
	ch := make(chan model.Event, buf)
	c.subMu.Lock()
	c.subs[ch] = struct{}{}
	c.subMu.Unlock()
	return ch, func() {
		c.subMu.Lock()
		defer c.subMu.Unlock()
		if _, ok := c.subs[ch]; ok {
			delete(c.subs, ch)
			close(ch)
		}
	}
}

func (c *Controller) publish(ev model.Event) {
	ev.At = time.Now()
	c.subMu.Lock()
	defer c.subMu.Unlock()
	for ch := range c.subs {
		select {
		case ch <- ev:
		default:
		}
	}
}

// Wait 等待进行中的获取与下载完成
func (c *Controller) Wait() {
	c.wg.Wait()
}

// Close 停止会话，取消挂起的获取并等待下载完成
func (c *Controller) Close() {
	c.mu.Lock()
	c.teardownLocked(model.ReasonShutdown, "")
	c.closed = true
	c.mu.Unlock()

	c.cancel()
	c.wg.Wait()
}
