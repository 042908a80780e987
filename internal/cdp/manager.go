package cdp

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"sync"
	"time"

	adapter "tabclip/internal/adapter/cdp"
	"tabclip/internal/capture"
	"tabclip/internal/logger"
	"tabclip/internal/media"
	"tabclip/internal/protocol"
	"tabclip/pkg/model"

	"github.com/mafredri/cdp"
	"github.com/mafredri/cdp/devtool"
	"github.com/mafredri/cdp/protocol/page"
	"github.com/mafredri/cdp/protocol/runtime"
	"github.com/mafredri/cdp/rpcc"
)

//go:embed bridge.js
var bridgeScript string

var (
	ErrUnknownTab = errors.New("cdp: tab not attached")
	ErrQueueFull  = errors.New("cdp: tab message queue full")
)

// Options 管理器参数
type Options struct {
	JPEGQuality       int
	DiscoveryInterval time.Duration
	CallTimeout       time.Duration
	Logger            logger.Logger
}

// Manager 管理所有页面目标的 CDP 连接，负责消息桥接与视频流获取
type Manager struct {
	devtoolsURL string
	opts        Options
	log         logger.Logger

	ctx    context.Context
	cancel context.CancelFunc

	mu      sync.Mutex
	targets map[model.TabID]*targetSession
	order   []model.TabID

	inbox chan protocol.Envelope
}

// targetSession 单个页面目标的连接状态
type targetSession struct {
	id     model.TabID
	info   model.TargetInfo
	conn   *rpcc.Conn
	client *cdp.Client
	ctx    context.Context
	cancel context.CancelFunc
	out    chan protocol.Message

	// streams 该页面上未停止的 screencast；最后一个停止时才发送 Page.stopScreencast
	mu      sync.Mutex
	streams map[*screencastStream]struct{}
}

// New 创建管理器
func New(devtoolsURL string, opts Options) *Manager {
	if opts.Logger == nil {
		opts.Logger = logger.NewNop()
	}
	if opts.JPEGQuality <= 0 {
		opts.JPEGQuality = 80
	}
	if opts.DiscoveryInterval <= 0 {
		opts.DiscoveryInterval = 2 * time.Second
	}
	if opts.CallTimeout <= 0 {
		opts.CallTimeout = 5 * time.Second
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Manager{
		devtoolsURL: devtoolsURL,
		opts:        opts,
		log:         opts.Logger.With("component", "cdp"),
		ctx:         ctx,
		cancel:      cancel,
		targets:     make(map[model.TabID]*targetSession),
		inbox:       make(chan protocol.Envelope, 64),
	}
}

// Inbox 来自标签页的消息
func (m *Manager) Inbox() <-chan protocol.Envelope { return m.inbox }

// Run 周期发现页面目标直到 ctx 结束
func (m *Manager) Run(ctx context.Context) error {
	if err := m.Refresh(ctx); err != nil {
		return err
	}
	ticker := time.NewTicker(m.opts.DiscoveryInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-m.ctx.Done():
			return nil
		case <-ticker.C:
			if err := m.Refresh(ctx); err != nil {
				m.log.Warn("刷新目标失败", "error", err)
			}
		}
	}
}

// Refresh 附加新出现的页面，分离已关闭的页面
func (m *Manager) Refresh(ctx context.Context) error {
	dt := devtool.New(m.devtoolsURL)
	targets, err := dt.List(ctx)
	if err != nil {
		return err
	}
	seen := make(map[model.TabID]bool)
	for _, t := range targets {
		if t.Type != devtool.Page || t.WebSocketDebuggerURL == "" {
			continue
		}
		id := model.TabID(t.ID)
		seen[id] = true
		m.mu.Lock()
		ts, ok := m.targets[id]
		if ok {
			ts.info = adapter.ToTargetInfo(t)
		}
		m.mu.Unlock()
		if ok {
			continue
		}
		if err := m.attach(ctx, t); err != nil {
			m.log.Warn("附加目标失败", "target", id, "error", err)
		}
	}

	m.mu.Lock()
	var gone []model.TabID
	for id := range m.targets {
		if !seen[id] {
			gone = append(gone, id)
		}
	}
	m.mu.Unlock()
	for _, id := range gone {
		m.detach(id)
	}
	return nil
}

func (m *Manager) attach(ctx context.Context, t *devtool.Target) error {
	conn, err := rpcc.DialContext(ctx, t.WebSocketDebuggerURL)
	if err != nil {
		return err
	}
	tctx, cancel := context.WithCancel(m.ctx)
	ts := &targetSession{
		id:     model.TabID(t.ID),
		info:   adapter.ToTargetInfo(t),
		conn:   conn,
		client: cdp.NewClient(conn),
		ctx:    tctx,
		cancel: cancel,
		out:    make(chan protocol.Message, 16),

		streams: make(map[*screencastStream]struct{}),
	}
	if err := m.installBridge(ts); err != nil {
		cancel()
		conn.Close()
		return err
	}

	m.mu.Lock()
	m.targets[ts.id] = ts
	m.order = append(m.order, ts.id)
	m.mu.Unlock()

	go m.consumeBindings(ts)
	go m.deliver(ts)
	m.log.Info("已附加页面", "target", ts.id, "url", ts.info.URL)
	return nil
}

func (m *Manager) installBridge(ts *targetSession) error {
	ctx, cancel := context.WithTimeout(ts.ctx, m.opts.CallTimeout)
	defer cancel()
	c := ts.client
	if err := c.Page.Enable(ctx); err != nil {
		return err
	}
	if err := c.Runtime.AddBinding(ctx, runtime.NewAddBindingArgs(adapter.BindingName)); err != nil {
		return err
	}
	if _, err := c.Page.AddScriptToEvaluateOnNewDocument(ctx, page.NewAddScriptToEvaluateOnNewDocumentArgs(bridgeScript)); err != nil {
		return err
	}
	reply, err := c.Runtime.Evaluate(ctx, runtime.NewEvaluateArgs(bridgeScript))
	if err != nil {
		return err
	}
	if reply.ExceptionDetails != nil {
		return fmt.Errorf("bridge script: %s", reply.ExceptionDetails.Text)
	}
	return nil
}

// consumeBindings 读取页面通过 binding 发来的消息
func (m *Manager) consumeBindings(ts *targetSession) {
	bc, err := ts.client.Runtime.BindingCalled(ts.ctx)
	if err != nil {
		m.log.Warn("订阅 binding 失败", "target", ts.id, "error", err)
		return
	}
	defer bc.Close()
	for {
		ev, err := bc.Recv()
		if err != nil {
			m.log.Debug("binding 事件流结束", "target", ts.id, "error", err)
			go m.detach(ts.id)
			return
		}
		env, err := adapter.ToEnvelope(ts.id, ev)
		if err != nil {
			m.log.Debug("丢弃无法解析的消息", "target", ts.id, "error", err)
			continue
		}
		select {
		case m.inbox <- env:
		case <-ts.ctx.Done():
			return
		}
	}
}

// deliver 按顺序将消息投递到页面
func (m *Manager) deliver(ts *targetSession) {
	for {
		select {
		case <-ts.ctx.Done():
			return
		case msg := <-ts.out:
			expr, err := adapter.ReceiveExpression(msg)
			if err != nil {
				m.log.Warn("编码消息失败", "error", err)
				continue
			}
			ctx, cancel := context.WithTimeout(ts.ctx, m.opts.CallTimeout)
			_, err = ts.client.Runtime.Evaluate(ctx, runtime.NewEvaluateArgs(expr))
			cancel()
			if err != nil {
				m.log.Debug("投递消息失败", "target", ts.id, "command", msg.Command, "error", err)
			}
		}
	}
}

// SendToTab 非阻塞地向标签页发送消息
func (m *Manager) SendToTab(tab model.TabID, msg protocol.Message) error {
	ts, ok := m.lookup(tab)
	if !ok {
		return ErrUnknownTab
	}
	select {
	case ts.out <- msg:
		return nil
	default:
		return ErrQueueFull
	}
}

// Acquire 在标签页上开启 screencast，帧尺寸限定为视口大小
func (m *Manager) Acquire(ctx context.Context, tab model.TabID, vp model.Viewport) (media.Stream, error) {
	ts, ok := m.lookup(tab)
	if !ok {
		return nil, fmt.Errorf("%w: %v", capture.ErrAcquisitionDenied, ErrUnknownTab)
	}
	st, err := startScreencast(ctx, ts, vp, m.opts, m.log)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", capture.ErrAcquisitionDenied, err)
	}
	return st, nil
}

// Targets 已附加的页面列表
func (m *Manager) Targets() []model.TargetInfo {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]model.TargetInfo, 0, len(m.order))
	for _, id := range m.order {
		if ts, ok := m.targets[id]; ok {
			out = append(out, ts.info)
		}
	}
	return out
}

// First 最早附加的页面
func (m *Manager) First() (model.TabID, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, id := range m.order {
		if _, ok := m.targets[id]; ok {
			return id, true
		}
	}
	return "", false
}

func (m *Manager) lookup(tab model.TabID) (*targetSession, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	ts, ok := m.targets[tab]
	return ts, ok
}

func (m *Manager) detach(id model.TabID) {
	m.mu.Lock()
	ts, ok := m.targets[id]
	delete(m.targets, id)
	for i, v := range m.order {
		if v == id {
			m.order = append(m.order[:i], m.order[i+1:]...)
			break
		}
	}
	m.mu.Unlock()
	if !ok {
		return
	}
	ts.mu.Lock()
	live := make([]*screencastStream, 0, len(ts.streams))
	for st := range ts.streams {
		live = append(live, st)
	}
	ts.mu.Unlock()
	for _, st := range live {
		st.end()
	}
	ts.cancel()
	ts.conn.Close()
	m.log.Info("已分离页面", "target", id)
}

// Close 分离所有页面
func (m *Manager) Close() error {
	m.mu.Lock()
	ids := append([]model.TabID(nil), m.order...)
	m.mu.Unlock()
	for _, id := range ids {
		m.detach(id)
	}
	m.cancel()
	return nil
}
