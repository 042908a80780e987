package cdp

import (
	"context"
	"sync"

	adapter "tabclip/internal/adapter/cdp"
	"tabclip/internal/logger"
	"tabclip/internal/media"
	"tabclip/pkg/model"

	"github.com/mafredri/cdp/protocol/page"
)

// screencastStream 基于 Page.startScreencast 的视频流
type screencastStream struct {
	ts     *targetSession
	frames chan media.Frame
	done   chan struct{}
	cancel context.CancelFunc
	once   sync.Once
	log    logger.Logger
	opts   Options
}

func startScreencast(ctx context.Context, ts *targetSession, vp model.Viewport, opts Options, l logger.Logger) (*screencastStream, error) {
	sctx, cancel := context.WithCancel(ts.ctx)
	fc, err := ts.client.Page.ScreencastFrame(sctx)
	if err != nil {
		cancel()
		return nil, err
	}

	// 录制前把标签页切到前台，后台标签页不产生帧
	if err := ts.client.Page.BringToFront(ctx); err != nil {
		l.Debug("切换标签页到前台失败", "target", ts.id, "error", err)
	}

	args := page.NewStartScreencastArgs().
		SetFormat("jpeg").
		SetQuality(opts.JPEGQuality).
		SetEveryNthFrame(1)
	if vp.Width > 0 && vp.Height > 0 {
		args = args.SetMaxWidth(vp.Width).SetMaxHeight(vp.Height)
	}
	s := &screencastStream{
		ts:     ts,
		frames: make(chan media.Frame, 2),
		done:   make(chan struct{}),
		cancel: cancel,
		log:    l,
		opts:   opts,
	}
	ts.mu.Lock()
	ts.streams[s] = struct{}{}
	ts.mu.Unlock()

	if err := ts.client.Page.StartScreencast(ctx, args); err != nil {
		s.release()
		fc.Close()
		cancel()
		return nil, err
	}
	go s.pump(sctx, fc)
	return s, nil
}

func (s *screencastStream) pump(ctx context.Context, fc page.ScreencastFrameClient) {
	defer fc.Close()
	defer s.end()
	for {
		ev, err := fc.Recv()
		if err != nil {
			return
		}
		actx, cancel := context.WithTimeout(ctx, s.opts.CallTimeout)
		err = s.ts.client.Page.ScreencastFrameAck(actx, page.NewScreencastFrameAckArgs(ev.SessionID))
		cancel()
		if err != nil {
			s.log.Debug("帧确认失败", "target", s.ts.id, "error", err)
		}

		f := adapter.ToFrame(ev)
		select {
		case s.frames <- f:
		default:
			// 消费方落后时丢弃最旧的一帧
			select {
			case <-s.frames:
			default:
			}
			select {
			case s.frames <- f:
			default:
			}
		}
	}
}

func (s *screencastStream) Frames() <-chan media.Frame { return s.frames }
func (s *screencastStream) Done() <-chan struct{}      { return s.done }

// Stop 停止本流；同一页面上没有其他存活的流时才停止 screencast
func (s *screencastStream) Stop() {
	s.once.Do(func() {
		if s.release() {
			ctx, cancel := context.WithTimeout(s.ts.ctx, s.opts.CallTimeout)
			defer cancel()
			if err := s.ts.client.Page.StopScreencast(ctx); err != nil {
				s.log.Debug("停止 screencast 失败", "target", s.ts.id, "error", err)
			}
		}
		s.cancel()
		close(s.done)
	})
}

// end 流因连接断开或目标关闭而失效
func (s *screencastStream) end() {
	s.once.Do(func() {
		s.release()
		s.cancel()
		close(s.done)
	})
}

// release 从页面的存活流中移除，返回是否为最后一个
func (s *screencastStream) release() bool {
	s.ts.mu.Lock()
	defer s.ts.mu.Unlock()
	delete(s.ts.streams, s)
	return len(s.ts.streams) == 0
}
