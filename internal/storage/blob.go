package storage

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/google/uuid"
)

var ErrHandleRevoked = errors.New("storage: blob handle revoked")

// Handle 指向一个临时 blob 的下载句柄
type Handle struct {
	ID        string
	Path      string
	MediaType string
	Size      int64
}

// BlobStore 将录制数据落到临时文件，句柄释放时删除
type BlobStore struct {
	dir  string
	mu   sync.Mutex
	live map[string]Handle
}

// NewBlobStore 创建 blob 存储，dir 为空时使用系统临时目录
func NewBlobStore(dir string) (*BlobStore, error) {
	if dir == "" {
		dir = os.TempDir()
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("创建临时目录失败: %w", err)
	}
	return &BlobStore{dir: dir, live: make(map[string]Handle)}, nil
}

// Create 写入 blob 并返回句柄
func (s *BlobStore) Create(data []byte, mediaType string) (Handle, error) {
	id := uuid.NewString()
	path := filepath.Join(s.dir, "tabclip-"+id+".blob")
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return Handle{}, fmt.Errorf("写入 blob 失败: %w", err)
	}
	h := Handle{ID: id, Path: path, MediaType: mediaType, Size: int64(len(data))}
	s.mu.Lock()
	s.live[id] = h
	s.mu.Unlock()
	return h, nil
}

// Lookup 查询仍有效的句柄
func (s *BlobStore) Lookup(id string) (Handle, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	h, ok := s.live[id]
	return h, ok
}

// Revoke 释放句柄并删除临时文件，可重复调用
func (s *BlobStore) Revoke(h Handle) error {
	s.mu.Lock()
	_, ok := s.live[h.ID]
	delete(s.live, h.ID)
	s.mu.Unlock()
	if !ok {
		return nil
	}
	if err := os.Remove(h.Path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}
	return nil
}

// Live 未释放的句柄数
func (s *BlobStore) Live() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.live)
}
