// Package protocol 定义后台与标签页之间的跨上下文消息及其 JSON 编解码
package protocol

import (
	"errors"
	"fmt"

	"tabclip/pkg/model"

	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"
)

// Command 消息命令
type Command string

const (
	CmdShowOverlay  Command = "show-overlay"
	CmdCloseOverlay Command = "close-overlay"
	CmdStartCapture Command = "start-capture"

	// 以下为标签页桥接脚本上报的平台生命周期通知
	CmdTabActivated Command = "tab-activated"
	CmdFocusChanged Command = "focus-changed"
	CmdPointer      Command = "pointer"
)

// PointerPhase 指针拖拽阶段
type PointerPhase string

const (
	PointerDown PointerPhase = "down"
	PointerMove PointerPhase = "move"
	PointerUp   PointerPhase = "up"
)

var (
	ErrMalformed      = errors.New("protocol: malformed message")
	ErrUnknownCommand = errors.New("protocol: unknown command")
)

// Message 跨上下文消息，只有与 Command 对应的字段有效
type Message struct {
	Command  Command
	Rect     model.Rect
	Viewport model.Viewport

	Phase PointerPhase
	X, Y  int

	Focused bool
}

// ShowOverlay 构造 show-overlay 消息
func ShowOverlay() Message { return Message{Command: CmdShowOverlay} }

// CloseOverlay 构造 close-overlay 消息
func CloseOverlay() Message { return Message{Command: CmdCloseOverlay} }

// StartCapture 构造 start-capture 消息
func StartCapture(rect model.Rect, vp model.Viewport) Message {
	return Message{Command: CmdStartCapture, Rect: rect, Viewport: vp}
}

// Encode 序列化消息
func Encode(m Message) ([]byte, error) {
	out := []byte(`{}`)
	var err error
	set := func(path string, v any) {
		if err != nil {
			return
		}
		out, err = sjson.SetBytes(out, path, v)
	}

	set("command", string(m.Command))
	switch m.Command {
	case CmdShowOverlay, CmdCloseOverlay, CmdTabActivated:
	case CmdStartCapture:
		set("rect.left", m.Rect.Left)
		set("rect.top", m.Rect.Top)
		set("rect.width", m.Rect.Width)
		set("rect.height", m.Rect.Height)
		set("innerWidth", m.Viewport.Width)
		set("innerHeight", m.Viewport.Height)
	case CmdFocusChanged:
		set("focused", m.Focused)
	case CmdPointer:
		set("phase", string(m.Phase))
		set("x", m.X)
		set("y", m.Y)
		set("innerWidth", m.Viewport.Width)
		set("innerHeight", m.Viewport.Height)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownCommand, m.Command)
	}
	if err != nil {
		return nil, err
	}
	return out, nil
}

// Decode 反序列化消息
func Decode(data []byte) (Message, error) {
	if !gjson.ValidBytes(data) {
		return Message{}, ErrMalformed
	}
	res := gjson.ParseBytes(data)
	cmd := res.Get("command")
	if !cmd.Exists() || cmd.Type != gjson.String {
		return Message{}, fmt.Errorf("%w: missing command", ErrMalformed)
	}

	m := Message{Command: Command(cmd.String())}
	switch m.Command {
	case CmdShowOverlay, CmdCloseOverlay, CmdTabActivated:
	case CmdStartCapture:
		r := res.Get("rect")
		if !r.IsObject() {
			return Message{}, fmt.Errorf("%w: start-capture without rect", ErrMalformed)
		}
		m.Rect = model.Rect{
			Left:   int(r.Get("left").Int()),
			Top:    int(r.Get("top").Int()),
			Width:  int(r.Get("width").Int()),
			Height: int(r.Get("height").Int()),
		}
		m.Viewport = viewportOf(res)
	case CmdFocusChanged:
		m.Focused = res.Get("focused").Bool()
	case CmdPointer:
		m.Phase = PointerPhase(res.Get("phase").String())
		switch m.Phase {
		case PointerDown, PointerMove, PointerUp:
		default:
			return Message{}, fmt.Errorf("%w: pointer phase %q", ErrMalformed, m.Phase)
		}
		m.X = int(res.Get("x").Int())
		m.Y = int(res.Get("y").Int())
		m.Viewport = viewportOf(res)
	default:
		return Message{}, fmt.Errorf("%w: %q", ErrUnknownCommand, m.Command)
	}
	return m, nil
}

func viewportOf(res gjson.Result) model.Viewport {
	return model.Viewport{
		Width:  int(res.Get("innerWidth").Int()),
		Height: int(res.Get("innerHeight").Int()),
	}
}

// Envelope 附带来源标签页的消息
type Envelope struct {
	Tab model.TabID
	Msg Message
}
