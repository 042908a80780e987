package storage

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"tabclip/pkg/model"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newHistory(t *testing.T) *History {
	t.Helper()
	db, err := Open(filepath.Join(t.TempDir(), "test.db"), "test_", nil)
	require.NoError(t, err)
	return NewHistory(db)
}

func TestBlobStore_CreateAndRevoke(t *testing.T) {
	bs, err := NewBlobStore(t.TempDir())
	require.NoError(t, err)

	h, err := bs.Create([]byte("hello"), "video/x-motion-jpeg")
	require.NoError(t, err)
	assert.Equal(t, int64(5), h.Size)
	assert.FileExists(t, h.Path)
	assert.Equal(t, 1, bs.Live())

	require.NoError(t, bs.Revoke(h))
	require.NoError(t, bs.Revoke(h))
	assert.NoFileExists(t, h.Path)
	assert.Zero(t, bs.Live())
}

func TestDownloader_UniquifiesLikeBrowser(t *testing.T) {
	dir := t.TempDir()
	bs, err := NewBlobStore(t.TempDir())
	require.NoError(t, err)
	hist := newHistory(t)
	dl, err := NewDownloader(dir, bs, hist, nil)
	require.NoError(t, err)

	for i := 0; i < 3; i++ {
		h, err := bs.Create([]byte("frame"), "video/x-motion-jpeg")
		require.NoError(t, err)
		got := make(chan model.Download, 1)
		dl.Download(context.Background(), DownloadRequest{Handle: h, Filename: "rec.mjpeg", Session: "s", Chunks: 1}, func(d model.Download, err error) {
			assert.NoError(t, err)
			got <- d
		})
		select {
		case <-got:
		case <-time.After(5 * time.Second):
			t.Fatal("download did not complete")
		}
	}

	for _, name := range []string{"rec.mjpeg", "rec (1).mjpeg", "rec (2).mjpeg"} {
		data, err := os.ReadFile(filepath.Join(dir, name))
		require.NoError(t, err, name)
		assert.Equal(t, "frame", string(data))
	}

	recs, err := hist.List(context.Background(), 10)
	require.NoError(t, err)
	assert.Len(t, recs, 3)
	assert.Equal(t, "video/x-motion-jpeg", recs[0].MediaType)
}

func TestDownloader_RevokedHandle(t *testing.T) {
	bs, err := NewBlobStore(t.TempDir())
	require.NoError(t, err)
	dl, err := NewDownloader(t.TempDir(), bs, nil, nil)
	require.NoError(t, err)

	h, err := bs.Create([]byte("x"), "video/x-motion-jpeg")
	require.NoError(t, err)
	require.NoError(t, bs.Revoke(h))

	errs := make(chan error, 1)
	dl.Download(context.Background(), DownloadRequest{Handle: h, Filename: "rec.mjpeg"}, func(_ model.Download, err error) { errs <- err })
	assert.ErrorIs(t, <-errs, ErrHandleRevoked)
}
