package storage

import (
	"context"
	"fmt"
	"time"

	"tabclip/internal/logger"
	"tabclip/pkg/model"

	"github.com/glebarez/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/schema"
)

// DownloadRecord 下载记录表
type DownloadRecord struct {
	ID        uint   `gorm:"primaryKey"`
	SessionID string `gorm:"index;size:64"`
	TabID     string `gorm:"size:128"`
	Filename  string `gorm:"size:255"`
	Path      string
	MediaType string `gorm:"size:64"`
	Size      int64
	Chunks    int
	RectLeft  int
	RectTop   int
	RectW     int
	RectH     int
	CreatedAt time.Time `gorm:"index"`
}

// Open 打开 SQLite 并迁移表结构
func Open(dsn, prefix string, l logger.Logger) (*gorm.DB, error) {
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger:         NewGormLogger(l),
		NamingStrategy: schema.NamingStrategy{TablePrefix: prefix},
	})
	if err != nil {
		return nil, fmt.Errorf("打开数据库失败: %w", err)
	}
	if err := db.AutoMigrate(&DownloadRecord{}); err != nil {
		return nil, fmt.Errorf("迁移表结构失败: %w", err)
	}
	return db, nil
}

// History 下载历史
type History struct {
	db *gorm.DB
}

// NewHistory 创建下载历史仓库
func NewHistory(db *gorm.DB) *History { return &History{db: db} }

// Add 写入一条记录
func (h *History) Add(ctx context.Context, d *model.Download) error {
	rec := DownloadRecord{
		SessionID: string(d.Session),
		TabID:     string(d.Tab),
		Filename:  d.Filename,
		Path:      d.Path,
		MediaType: d.MediaType,
		Size:      d.Size,
		Chunks:    d.Chunks,
		RectLeft:  d.Rect.Left,
		RectTop:   d.Rect.Top,
		RectW:     d.Rect.Width,
		RectH:     d.Rect.Height,
		CreatedAt: d.CreatedAt,
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now()
	}
	if err := h.db.WithContext(ctx).Create(&rec).Error; err != nil {
		return err
	}
	d.ID = rec.ID
	d.CreatedAt = rec.CreatedAt
	return nil
}

// List 按时间倒序列出最近的记录
func (h *History) List(ctx context.Context, limit int) ([]model.Download, error) {
	if limit <= 0 {
		limit = 50
	}
	var recs []DownloadRecord
	err := h.db.WithContext(ctx).Order("created_at desc, id desc").Limit(limit).Find(&recs).Error
	if err != nil {
		return nil, err
	}
	out := make([]model.Download, 0, len(recs))
	for _, r := range recs {
		out = append(out, model.Download{
			ID:        r.ID,
			Session:   model.SessionID(r.SessionID),
			Tab:       model.TabID(r.TabID),
			Filename:  r.Filename,
			Path:      r.Path,
			MediaType: r.MediaType,
			Size:      r.Size,
			Chunks:    r.Chunks,
			Rect:      model.Rect{Left: r.RectLeft, Top: r.RectTop, Width: r.RectW, Height: r.RectH},
			CreatedAt: r.CreatedAt,
		})
	}
	return out, nil
}
