package session

import (
	"sync"
	"time"

	"tabclip/internal/media"
	"tabclip/internal/schedule"
	"tabclip/pkg/model"

	"github.com/google/uuid"
)

// Session 代表一次区域录制会话，全局至多存在一个
type Session struct {
	ID         model.SessionID
	Generation uint64
	TabID      model.TabID
	Rect       model.Rect
	Viewport   model.Viewport
	StartedAt  time.Time

	Stream   media.Stream
	Source   *media.Source
	Surface  *media.Surface
	Recorder *media.Recorder
	Timer    schedule.Task

	Chunks *ChunkBuffer
}

// New 创建会话记录（资源槽位为空）
func New(gen uint64, req model.CaptureRequest) *Session {
	return &Session{
		ID:         model.SessionID(uuid.NewString()),
		Generation: gen,
		TabID:      req.Origin,
		Rect:       req.Rect,
		Viewport:   req.Viewport,
		Chunks:     NewChunkBuffer(),
	}
}

// Active 五个资源槽位是否全部就绪
func (s *Session) Active() bool {
	return s != nil && s.Stream != nil && s.Source != nil && s.Surface != nil && s.Recorder != nil && s.Timer != nil
}

// Idle 五个资源槽位是否全部为空
func (s *Session) Idle() bool {
	return s == nil || (s.Stream == nil && s.Source == nil && s.Surface == nil && s.Recorder == nil && s.Timer == nil)
}

// ChunkBuffer 按到达顺序保存录制数据块
type ChunkBuffer struct {
	mu     sync.Mutex
	chunks [][]byte
	size   int
}

// NewChunkBuffer 创建空缓冲
func NewChunkBuffer() *ChunkBuffer { return &ChunkBuffer{} }

// Append 追加数据块，空块忽略；返回是否追加
func (b *ChunkBuffer) Append(chunk []byte) bool {
	if len(chunk) == 0 {
		return false
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.chunks = append(b.chunks, chunk)
	b.size += len(chunk)
	return true
}

// Len 数据块个数
func (b *ChunkBuffer) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.chunks)
}

// Size 总字节数
func (b *ChunkBuffer) Size() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.size
}

// Bytes 按到达顺序拼接
func (b *ChunkBuffer) Bytes() []byte {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]byte, 0, b.size)
	for _, c := range b.chunks {
		out = append(out, c...)
	}
	return out
}

// Clear 清空
func (b *ChunkBuffer) Clear() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.chunks = nil
	b.size = 0
}
