package cdp

import (
	"context"
	"testing"

	"tabclip/internal/capture"
	"tabclip/internal/logger"
	"tabclip/internal/protocol"
	"tabclip/pkg/model"

	"github.com/stretchr/testify/assert"
)

func TestManager_UnknownTab(t *testing.T) {
	m := New("http://127.0.0.1:0", Options{})
	defer m.Close()

	assert.ErrorIs(t, m.SendToTab("nope", protocol.ShowOverlay()), ErrUnknownTab)

	_, err := m.Acquire(context.Background(), "nope", model.Viewport{Width: 800, Height: 600})
	assert.ErrorIs(t, err, capture.ErrAcquisitionDenied)

	_, ok := m.First()
	assert.False(t, ok)
	assert.Empty(t, m.Targets())
}

func TestBridgeScriptEmbedded(t *testing.T) {
	assert.Contains(t, bridgeScript, "__tabclipSend")
	assert.Contains(t, bridgeScript, "window.__tabclip")
}

func TestBridgeScript_OverlayStaysOutOfRecording(t *testing.T) {
	// 松开指针即隐藏覆盖层，选区外用 box-shadow 变暗而选区内透明
	assert.Contains(t, bridgeScript, `if (phase === "up") root.style.display = "none";`)
	assert.Contains(t, bridgeScript, "boxShadow")
	assert.Contains(t, bridgeScript, `root.style.backgroundColor = "transparent"`)
}

func TestBridgeScript_ReportsBlurOnly(t *testing.T) {
	assert.Contains(t, bridgeScript, `window.addEventListener("blur"`)
	assert.NotContains(t, bridgeScript, `window.addEventListener("focus"`)
}

func newTestStream(ts *targetSession) *screencastStream {
	s := &screencastStream{ts: ts, done: make(chan struct{}), cancel: func() {}, log: logger.NewNop()}
	ts.mu.Lock()
	ts.streams[s] = struct{}{}
	ts.mu.Unlock()
	return s
}

func TestScreencast_StaleStopLeavesNewerStream(t *testing.T) {
	// client 为 nil：若旧流停止时调用 Page.stopScreencast 会直接 panic
	ts := &targetSession{id: "T1", ctx: context.Background(), streams: make(map[*screencastStream]struct{})}
	older := newTestStream(ts)
	newer := newTestStream(ts)

	older.Stop()
	older.Stop()

	select {
	case <-older.Done():
	default:
		t.Fatal("older stream not done")
	}
	select {
	case <-newer.Done():
		t.Fatal("newer stream stopped by a superseded one")
	default:
	}
	assert.Len(t, ts.streams, 1)

	newer.end()
	assert.Empty(t, ts.streams)
}
