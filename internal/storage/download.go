package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"tabclip/internal/logger"
	"tabclip/pkg/model"

	"github.com/dustin/go-humanize"
)

// DownloadRequest 一次下载请求
type DownloadRequest struct {
	Handle   Handle
	Filename string
	Session  model.SessionID
	Tab      model.TabID
	Rect     model.Rect
	Chunks   int
}

// Downloader 将 blob 复制到下载目录，同名文件按浏览器方式追加序号
type Downloader struct {
	dir     string
	blobs   *BlobStore
	history *History
	log     logger.Logger
	now     func() time.Time
}

// NewDownloader 创建下载器，history 可为 nil
func NewDownloader(dir string, blobs *BlobStore, history *History, l logger.Logger) (*Downloader, error) {
	if l == nil {
		l = logger.NewNop()
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("创建下载目录失败: %w", err)
	}
	return &Downloader{dir: dir, blobs: blobs, history: history, log: l, now: time.Now}, nil
}

// Download 异步下载，完成后调用 done
func (d *Downloader) Download(ctx context.Context, req DownloadRequest, done func(model.Download, error)) {
	go func() {
		res, err := d.download(ctx, req)
		if err != nil {
			d.log.Error("下载失败", "file", req.Filename, "error", err)
		} else {
			d.log.Info("下载完成", "path", res.Path, "size", humanize.Bytes(uint64(res.Size)), "chunks", res.Chunks)
		}
		if done != nil {
			done(res, err)
		}
	}()
}

func (d *Downloader) download(ctx context.Context, req DownloadRequest) (model.Download, error) {
	if d.blobs != nil {
		if _, ok := d.blobs.Lookup(req.Handle.ID); !ok {
			return model.Download{}, ErrHandleRevoked
		}
	}
	in, err := os.Open(req.Handle.Path)
	if err != nil {
		return model.Download{}, err
	}
	defer in.Close()

	out, path, err := createUnique(d.dir, req.Filename)
	if err != nil {
		return model.Download{}, err
	}
	n, err := io.Copy(out, in)
	if cerr := out.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		_ = os.Remove(path)
		return model.Download{}, err
	}

	res := model.Download{
		Session:   req.Session,
		Tab:       req.Tab,
		Filename:  filepath.Base(path),
		Path:      path,
		MediaType: req.Handle.MediaType,
		Size:      n,
		Chunks:    req.Chunks,
		Rect:      req.Rect,
		CreatedAt: d.now(),
	}
	if d.history != nil {
		if err := d.history.Add(ctx, &res); err != nil {
			d.log.Warn("写入下载历史失败", "error", err)
		}
	}
	return res, nil
}

// createUnique 以独占方式创建文件：name、name (1)、name (2) ...
func createUnique(dir, name string) (*os.File, string, error) {
	ext := filepath.Ext(name)
	stem := strings.TrimSuffix(name, ext)
	for i := 0; i < 10000; i++ {
		candidate := name
		if i > 0 {
			candidate = fmt.Sprintf("%s (%d)%s", stem, i, ext)
		}
		path := filepath.Join(dir, candidate)
		f, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
		if err == nil {
			return f, path, nil
		}
		if !errors.Is(err, os.ErrExist) {
			return nil, "", err
		}
	}
	return nil, "", fmt.Errorf("文件名冲突过多: %s", name)
}
