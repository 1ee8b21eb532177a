package drive

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/jun/drivemirror/internal/adapter"
	"github.com/jun/drivemirror/internal/cache"
	"github.com/jun/drivemirror/internal/metrics"
	"go.uber.org/zap"
)

const copyBufferSize = 32 * 1024

// GetFileLocalPath returns the path of a local copy of the file's content,
// downloading it into the cache on a miss. The path is derived from id, not
// from the file's name.
//
// On any failure after the entry was reserved the entry is removed and an
// error matching ErrPartialDownload is returned. When the remote stream could
// not be opened the error also matches ErrRemoteService. Concurrent calls for
// the same id share one download, which is not cancelled by any one caller.
func (c *Client) GetFileLocalPath(ctx context.Context, id string) (string, error) {
	const op = "getFileLocalPath"

	gw, _, filesTTL := c.binding()
	if gw == nil {
		return "", configError(op, id, "cache not enabled")
	}
	if filesTTL < 0 {
		return "", configError(op, id, "file caching disabled")
	}

	path, ok, err := c.cachedPath(ctx, gw, id)
	if err != nil {
		return "", opError(op, id, ErrCache, err)
	}
	if ok {
		return path, nil
	}

	// The download outlives any single caller. A caller whose ctx ends stops
	// waiting, and the others keep sharing the download.
	ch := c.downloads.DoChan(id, func() (any, error) {
		fctx := context.WithoutCancel(ctx)
		if c.downloadTimeout > 0 {
			var cancel context.CancelFunc
			fctx, cancel = context.WithTimeout(fctx, c.downloadTimeout)
			defer cancel()
		}
		// A download that finished while this call waited to start counts.
		if path, ok, err := gw.Path(fctx, cache.SectionFiles, id); err == nil && ok {
			return path, nil
		}
		return c.mirror(fctx, op, gw, id)
	})

	select {
	case <-ctx.Done():
		return "", opError(op, id, ErrRemoteService, ctx.Err())
	case res := <-ch:
		if res.Err != nil {
			return "", res.Err
		}
		return res.Val.(string), nil
	}
}

func (c *Client) cachedPath(ctx context.Context, gw cache.Gateway, id string) (string, bool, error) {
	path, ok, err := gw.Path(ctx, cache.SectionFiles, id)
	if err != nil {
		return "", false, err
	}
	metrics.RecordCacheLookup(cache.SectionFiles, ok)
	if ok {
		c.logger.Debug("file cache hit", zap.String("file_id", id), zap.String("path", path))
	}
	return path, ok, nil
}

// mirror reserves the cache entry, streams the content into it and commits.
// Every failure after Reserve clears the entry.
func (c *Client) mirror(ctx context.Context, op string, gw cache.Gateway, id string) (string, error) {
	svc, err := c.ensure(ctx, op, id)
	if err != nil {
		return "", err
	}

	path, err := gw.Reserve(ctx, cache.SectionFiles, id)
	if err != nil {
		return "", opError(op, id, ErrCache, err)
	}

	n, err := download(ctx, svc, id, path)
	if err == nil {
		err = gw.Commit(ctx, cache.SectionFiles, id)
	}
	if err != nil {
		metrics.RecordPartialDownload()
		// ctx may already be done; the reservation is cleared regardless.
		if cerr := gw.Clear(context.WithoutCancel(ctx), cache.SectionFiles, id); cerr != nil {
			c.logger.Error("failed to clear partial download",
				zap.String("file_id", id),
				zap.Error(cerr),
			)
			err = errors.Join(err, fmt.Errorf("clear reservation: %w", cerr))
		} else {
			c.logger.Warn("download failed, reservation cleared",
				zap.String("file_id", id),
				zap.Int64("bytes", n),
				zap.Error(err),
			)
		}
		return "", opError(op, id, ErrPartialDownload, err)
	}

	metrics.RecordBytesMirrored(n)
	c.logger.Info("mirrored file",
		zap.String("file_id", id),
		zap.String("path", path),
		zap.Int64("bytes", n),
	)
	return path, nil
}

// download copies the remote content of id into path and closes both ends.
func download(ctx context.Context, svc adapter.RemoteService, id, path string) (n int64, err error) {
	rc, err := svc.OpenContent(ctx, id)
	metrics.RecordRemoteCall("download", err)
	if err != nil {
		return 0, fmt.Errorf("open remote stream: %w: %w", ErrRemoteService, err)
	}
	defer func() {
		if cerr := rc.Close(); cerr != nil && err == nil {
			err = fmt.Errorf("close remote stream: %w", cerr)
		}
	}()

	f, err := os.OpenFile(path, os.O_WRONLY|os.O_TRUNC, 0)
	if err != nil {
		return 0, fmt.Errorf("open cache blob: %w", err)
	}

	n, err = io.CopyBuffer(f, rc, make([]byte, copyBufferSize))
	if err != nil {
		f.Close()
		return n, fmt.Errorf("copy content: %w", err)
	}
	if err := f.Close(); err != nil {
		return n, fmt.Errorf("close cache blob: %w", err)
	}
	return n, nil
}
