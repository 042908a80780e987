package model

import "time"

type TabID string
type SessionID string

// Rect 选区矩形（视口坐标，CSS 像素）
type Rect struct {
	Left   int `json:"left"`
	Top    int `json:"top"`
	Width  int `json:"width"`
	Height int `json:"height"`
}

// Empty 面积为零
func (r Rect) Empty() bool { return r.Width == 0 || r.Height == 0 }

// Valid 宽高非负
func (r Rect) Valid() bool { return r.Width >= 0 && r.Height >= 0 }

// Within 选区完全落在视口内；视口尺寸必须为正
func (r Rect) Within(vp Viewport) bool {
	if vp.Width <= 0 || vp.Height <= 0 || r.Left < 0 || r.Top < 0 {
		return false
	}
	return r.Left <= vp.Width && r.Top <= vp.Height &&
		r.Width <= vp.Width-r.Left && r.Height <= vp.Height-r.Top
}

// Viewport 标签页视口尺寸
type Viewport struct {
	Width  int `json:"innerWidth"`
	Height int `json:"innerHeight"`
}

// CaptureRequest 开始录制请求
type CaptureRequest struct {
	Rect     Rect
	Viewport Viewport
	Origin   TabID
}

// State 录制会话状态
type State string

const (
	StateIdle     State = "idle"
	StateStarting State = "starting"
	StateActive   State = "active"
	StateStopping State = "stopping"
)

// StopReason 终止触发来源
type StopReason string

const (
	ReasonToggle     StopReason = "toggle"
	ReasonTabSwitch  StopReason = "tab-switch"
	ReasonWindowBlur StopReason = "window-blur"
	ReasonInactive   StopReason = "stream-inactive"
	ReasonSuperseded StopReason = "superseded"
	ReasonShutdown   StopReason = "shutdown"
	ReasonAPI        StopReason = "api"
)

// Status 会话状态快照
type Status struct {
	State      State     `json:"state"`
	Session    SessionID `json:"session,omitempty"`
	Tab        TabID     `json:"tab,omitempty"`
	Rect       *Rect     `json:"rect,omitempty"`
	Generation uint64    `json:"generation"`
	Chunks     int       `json:"chunks"`
	Frames     int64     `json:"frames"`
	StartedAt  time.Time `json:"startedAt,omitempty"`
}

// Event 会话事件
type Event struct {
	Type    string     `json:"type"` // started / stopped / denied / downloaded
	Session SessionID  `json:"session,omitempty"`
	Tab     TabID      `json:"tab,omitempty"`
	Reason  StopReason `json:"reason,omitempty"`
	File    string     `json:"file,omitempty"`
	Error   string     `json:"error,omitempty"`
	At      time.Time  `json:"at"`
}

// TargetInfo 浏览器页面目标
type TargetInfo struct {
	ID        TabID  `json:"id"`
	Type      string `json:"type"`
	URL       string `json:"url"`
	Title     string `json:"title"`
	IsCurrent bool   `json:"isCurrent"`
}

// Download 一次下载的记录
type Download struct {
	ID        uint      `json:"id"`
	Session   SessionID `json:"session"`
	Tab       TabID     `json:"tab"`
	Filename  string    `json:"filename"`
	Path      string    `json:"path"`
	MediaType string    `json:"mediaType"`
	Size      int64     `json:"size"`
	Chunks    int       `json:"chunks"`
	Rect      Rect      `json:"rect"`
	CreatedAt time.Time `json:"createdAt"`
}
