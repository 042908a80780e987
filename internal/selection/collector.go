// Package selection 实现选区收集器：根据指针拖拽计算矩形，松开后发出 start-capture
package selection

import (
	"sync"

	"tabclip/internal/protocol"
	"tabclip/pkg/model"
)

// Sender 消息发送端（标签页上下文 -> 后台）
type Sender interface {
	Send(msg protocol.Message)
}

// SenderFunc 函数适配器
type SenderFunc func(msg protocol.Message)

func (f SenderFunc) Send(msg protocol.Message) { f(msg) }

type point struct{ x, y int }

// Collector 单个覆盖层生命周期内的拖拽状态
type Collector struct {
	mu       sync.Mutex
	start    *point
	end      *point
	selected bool
	out      Sender
}

// New 创建收集器
func New(out Sender) *Collector {
	return &Collector{out: out}
}

// Begin 按下指针
func (c *Collector) Begin(x, y int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.selected {
		return
	}
	c.start = &point{x, y}
}

// Move 拖动指针，未按下时忽略
func (c *Collector) Move(x, y int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.selected || c.start == nil {
		return
	}
	c.end = &point{x, y}
}

// End 松开指针，发出最终选区；返回是否完成了选择
func (c *Collector) End(x, y int, vp model.Viewport) bool {
	c.mu.Lock()
	if c.selected || c.start == nil {
		c.mu.Unlock()
		return false
	}
	c.end = &point{x, y}
	c.selected = true
	rect := c.rectLocked()
	c.mu.Unlock()

	if c.out != nil {
		c.out.Send(protocol.StartCapture(rect, vp))
	}
	return true
}

// Handle 分发 pointer 消息
func (c *Collector) Handle(msg protocol.Message) {
	switch msg.Phase {
	case protocol.PointerDown:
		c.Begin(msg.X, msg.Y)
	case protocol.PointerMove:
		c.Move(msg.X, msg.Y)
	case protocol.PointerUp:
		c.End(msg.X, msg.Y, msg.Viewport)
	}
}

// Rect 当前选区
func (c *Collector) Rect() model.Rect {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.rectLocked()
}

// Selected 是否已完成选择
func (c *Collector) Selected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.selected
}

func (c *Collector) rectLocked() model.Rect {
	if c.start == nil || c.end == nil {
		return model.Rect{}
	}
	return model.Rect{
		Left:   min(c.start.x, c.end.x),
		Top:    min(c.start.y, c.end.y),
		Width:  abs(c.end.x - c.start.x),
		Height: abs(c.end.y - c.start.y),
	}
}

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}
