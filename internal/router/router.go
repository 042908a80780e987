// Package router 将标签页上报的消息分发给录制控制器，并为打开覆盖层的标签页维护选区收集器
package router

import (
	"context"
	"sync"

	"tabclip/internal/logger"
	"tabclip/internal/protocol"
	"tabclip/internal/selection"
	"tabclip/pkg/model"
)

// Controller 录制控制器中被路由调用的部分
type Controller interface {
	StartCapture(req model.CaptureRequest) error
	TabActivated(tab model.TabID)
	FocusChanged()
}

// Transport 底层的标签页消息通道
type Transport interface {
	SendToTab(tab model.TabID, msg protocol.Message) error
}

// Router 消息路由
type Router struct {
	mu         sync.Mutex
	collectors map[model.TabID]*selection.Collector
	transport  Transport
	ctrl       Controller
	log        logger.Logger
}

// New 创建路由
func New(t Transport, l logger.Logger) *Router {
	if l == nil {
		l = logger.NewNop()
	}
	return &Router{
		collectors: make(map[model.TabID]*selection.Collector),
		transport:  t,
		log:        l.With("component", "router"),
	}
}

// Bind 绑定控制器，需在 Run 之前调用
func (r *Router) Bind(ctrl Controller) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.ctrl = ctrl
}

// SendToTab 转发消息到标签页，同时跟踪覆盖层的打开与关闭
func (r *Router) SendToTab(tab model.TabID, msg protocol.Message) error {
	switch msg.Command {
	case protocol.CmdShowOverlay:
		r.mu.Lock()
		r.collectors[tab] = selection.New(r.captureSender(tab))
		r.mu.Unlock()
	case protocol.CmdCloseOverlay:
		r.mu.Lock()
		delete(r.collectors, tab)
		r.mu.Unlock()
	}
	return r.transport.SendToTab(tab, msg)
}

func (r *Router) captureSender(tab model.TabID) selection.Sender {
	return selection.SenderFunc(func(msg protocol.Message) {
		r.dispatch(protocol.Envelope{Tab: tab, Msg: msg})
	})
}

// Collecting 标签页是否有打开的覆盖层
func (r *Router) Collecting(tab model.TabID) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.collectors[tab]
	return ok
}

// Run 消费 inbox 直到 ctx 结束或 inbox 关闭
func (r *Router) Run(ctx context.Context, inbox <-chan protocol.Envelope) {
	for {
		select {
		case <-ctx.Done():
			return
		case env, ok := <-inbox:
			if !ok {
				return
			}
			r.dispatch(env)
		}
	}
}

func (r *Router) dispatch(env protocol.Envelope) {
	r.mu.Lock()
	ctrl := r.ctrl
	r.mu.Unlock()
	if ctrl == nil {
		r.log.Warn("控制器未绑定，丢弃消息", "tab", env.Tab, "command", env.Msg.Command)
		return
	}

	switch env.Msg.Command {
	case protocol.CmdStartCapture:
		req := model.CaptureRequest{Rect: env.Msg.Rect, Viewport: env.Msg.Viewport, Origin: env.Tab}
		if err := ctrl.StartCapture(req); err != nil {
			r.log.Warn("开始录制失败", "tab", env.Tab, "rect", env.Msg.Rect, "error", err)
		}
	case protocol.CmdTabActivated:
		ctrl.TabActivated(env.Tab)
	case protocol.CmdFocusChanged:
		ctrl.FocusChanged()
	case protocol.CmdPointer:
		r.mu.Lock()
		col := r.collectors[env.Tab]
		r.mu.Unlock()
		if col == nil {
			return
		}
		col.Handle(env.Msg)
	default:
		r.log.Debug("忽略消息", "tab", env.Tab, "command", env.Msg.Command)
	}
}
