package cdp

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"tabclip/internal/media"
	"tabclip/internal/protocol"
	"tabclip/pkg/model"

	"github.com/mafredri/cdp/devtool"
	"github.com/mafredri/cdp/protocol/page"
	"github.com/mafredri/cdp/protocol/runtime"
)

// BindingName 页面向后台发消息所用的 Runtime binding 名称
const BindingName = "__tabclipSend"

// ToFrame 将 screencast 帧事件转换为媒体帧
func ToFrame(ev *page.ScreencastFrameReply) media.Frame {
	return media.Frame{Data: ev.Data, Timestamp: time.Now()}
}

// ToEnvelope 将 binding 调用转换为来自标签页的消息
func ToEnvelope(tab model.TabID, ev *runtime.BindingCalledReply) (protocol.Envelope, error) {
	if ev.Name != BindingName {
		return protocol.Envelope{}, fmt.Errorf("unexpected binding %q", ev.Name)
	}
	msg, err := protocol.Decode([]byte(ev.Payload))
	if err != nil {
		return protocol.Envelope{}, err
	}
	return protocol.Envelope{Tab: tab, Msg: msg}, nil
}

// ToTargetInfo 将 devtool 目标转换为领域模型
func ToTargetInfo(t *devtool.Target) model.TargetInfo {
	return model.TargetInfo{
		ID:    model.TabID(t.ID),
		Type:  string(t.Type),
		URL:   t.URL,
		Title: t.Title,
	}
}

// ReceiveExpression 生成投递消息到页面桥接脚本的表达式
func ReceiveExpression(msg protocol.Message) (string, error) {
	data, err := protocol.Encode(msg)
	if err != nil {
		return "", err
	}
	// JSON 本身即合法的 JS 字面量
	return fmt.Sprintf("window.__tabclip && window.__tabclip.receive(%s)", data), nil
}

// HTTPEndpoint 将浏览器 websocket 调试地址转换为 devtool 所需的 HTTP 地址
func HTTPEndpoint(raw string) (string, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return "", err
	}
	switch strings.ToLower(u.Scheme) {
	case "ws":
		u.Scheme = "http"
	case "wss":
		u.Scheme = "https"
	case "http", "https":
	default:
		return "", fmt.Errorf("unsupported devtools scheme %q", u.Scheme)
	}
	return u.Scheme + "://" + u.Host, nil
}
