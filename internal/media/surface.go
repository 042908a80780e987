package media

import (
	"image"
	"image/color"
	"image/draw"
	"sync"

	"github.com/disintegration/imaging"
)

// Surface 离屏画布，尺寸在创建时固定为选区大小
type Surface struct {
	mu       sync.Mutex
	width    int
	height   int
	canvas   *image.NRGBA
	ctx      *Context
	released bool
}

// Context 画布的绘图上下文
type Context struct {
	s *Surface
}

// NewSurface 创建 w×h 画布
func NewSurface(w, h int) *Surface {
	s := &Surface{width: w, height: h, canvas: imaging.New(w, h, color.Black)}
	s.ctx = &Context{s: s}
	return s
}

// Size 画布尺寸
func (s *Surface) Size() (int, int) { return s.width, s.height }

// Context 返回绘图上下文，画布释放后为 nil
func (s *Surface) Context() *Context {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.released {
		return nil
	}
	return s.ctx
}

// Snapshot 复制当前画面，画布释放后为 nil
func (s *Surface) Snapshot() image.Image {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.released {
		return nil
	}
	return imaging.Clone(s.canvas)
}

// Release 释放画布
func (s *Surface) Release() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.released = true
	s.canvas = nil
	s.ctx = nil
}

// DrawImage 将 src 中 (sx, sy, sw, sh) 区域缩放绘制到整个画布；
// 区域超出 src 的部分保持透明
func (c *Context) DrawImage(src image.Image, sx, sy, sw, sh int) bool {
	if src == nil || sw <= 0 || sh <= 0 {
		return false
	}
	region := cropRegion(src, image.Rect(sx, sy, sx+sw, sy+sh))

	s := c.s
	var out image.Image = region
	if sw != s.width || sh != s.height {
		out = imaging.Resize(region, s.width, s.height, imaging.Linear)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.released {
		return false
	}
	draw.Draw(s.canvas, s.canvas.Bounds(), out, image.Point{}, draw.Src)
	return true
}

func cropRegion(src image.Image, r image.Rectangle) *image.NRGBA {
	b := src.Bounds()
	inter := r.Add(b.Min).Intersect(b)
	bg := imaging.New(r.Dx(), r.Dy(), color.Transparent)
	if inter.Empty() {
		return bg
	}
	part := imaging.Crop(src, inter)
	offset := inter.Min.Sub(b.Min).Sub(r.Min)
	return imaging.Paste(bg, part, offset)
}
