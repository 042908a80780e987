// Package media 提供录制管线的媒体组件：源元素、合成画布与录制器
package media

import (
	"bytes"
	"image"
	"sync"
	"time"

	"github.com/disintegration/imaging"
)

// Frame 流中的一帧（编码后的图像数据）
type Frame struct {
	Data      []byte
	Timestamp time.Time
}

// Stream 已获取的视频流
type Stream interface {
	// Frames 帧通道，流结束时关闭
	Frames() <-chan Frame
	// Done 流变为 inactive 时关闭
	Done() <-chan struct{}
	// Stop 停止流的所有轨道
	Stop()
}

// Source 绑定到流的隐藏播放器，持有最新一帧，供合成循环读取
type Source struct {
	mu       sync.Mutex
	raw      []byte
	decoded  image.Image
	released bool
	frames   int64
	stop     chan struct{}
	done     chan struct{}
}

// NewSource 绑定流并开始播放
func NewSource(s Stream) *Source {
	src := &Source{stop: make(chan struct{}), done: make(chan struct{})}
	go src.play(s.Frames())
	return src
}

func (s *Source) play(frames <-chan Frame) {
	defer close(s.done)
	for {
		select {
		case <-s.stop:
			return
		case f, ok := <-frames:
			if !ok {
				return
			}
			s.push(f)
		}
	}
}

func (s *Source) push(f Frame) {
	if len(f.Data) == 0 {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.released {
		return
	}
	s.raw = f.Data
	s.decoded = nil
	s.frames++
}

// Frame 当前帧，按需解码；无帧或已释放时返回 nil
func (s *Source) Frame() image.Image {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.released {
		return nil
	}
	if s.decoded == nil && s.raw != nil {
		img, err := imaging.Decode(bytes.NewReader(s.raw))
		if err != nil {
			s.raw = nil
			return nil
		}
		s.decoded = img
	}
	return s.decoded
}

// Received 已收到的帧数
func (s *Source) Received() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.frames
}

// Release 解除与流的绑定
func (s *Source) Release() {
	s.mu.Lock()
	if s.released {
		s.mu.Unlock()
		return
	}
	s.released = true
	s.raw = nil
	s.decoded = nil
	s.mu.Unlock()
	close(s.stop)
	<-s.done
}

// Released 是否已释放
func (s *Source) Released() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.released
}
