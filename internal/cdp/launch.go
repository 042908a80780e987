package cdp

import (
	"fmt"

	adapter "tabclip/internal/adapter/cdp"

	"github.com/go-rod/rod/lib/launcher"
)

// Browser 由本进程启动的浏览器
type Browser struct {
	DevToolsURL string
	l           *launcher.Launcher
}

// Launch 启动本地 Chrome 并返回其 HTTP 调试地址
func Launch(headless bool) (*Browser, error) {
	l := launcher.New().
		Headless(headless).
		Set("disable-gpu").
		Set("autoplay-policy", "no-user-gesture-required")

	wsURL, err := l.Launch()
	if err != nil {
		return nil, fmt.Errorf("failed to launch Chrome: %w", err)
	}
	endpoint, err := adapter.HTTPEndpoint(wsURL)
	if err != nil {
		l.Kill()
		return nil, err
	}
	return &Browser{DevToolsURL: endpoint, l: l}, nil
}

// Close 结束浏览器进程
func (b *Browser) Close() {
	b.l.Kill()
}
