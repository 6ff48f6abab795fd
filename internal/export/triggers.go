package export

import (
	"context"
	"errors"
	"fmt"
	"mime"
	"net/http"
	"os"
	"path/filepath"
	"strconv"

	"github.com/local/pdfmerger/internal/blob"
)

// ErrPartialDownload marks an HTTPDownload that failed after the status line
// and headers were sent. The response cannot carry an error body any more.
var ErrPartialDownload = errors.New("download interrupted after response started")

// HTTPDownload writes the staged object to w as a file attachment.
func HTTPDownload(w http.ResponseWriter) Trigger {
	return func(ctx context.Context, store blob.Store, h blob.Handle, fileName string) error {
		data, err := store.Get(ctx, h.Ref)
		if err != nil {
			return err
		}
		w.Header().Set("Content-Type", h.ContentType)
		w.Header().Set("Content-Disposition", mime.FormatMediaType("attachment", map[string]string{"filename": fileName}))
		w.Header().Set("Content-Length", strconv.Itoa(len(data)))
		w.WriteHeader(http.StatusOK)
		if _, err := w.Write(data); err != nil {
			return fmt.Errorf("%w: %w", ErrPartialDownload, err)
		}
		return nil
	}
}

// SaveToDir writes the staged object to dir/fileName.
func SaveToDir(dir string) Trigger {
	return func(ctx context.Context, store blob.Store, h blob.Handle, fileName string) error {
		data, err := store.Get(ctx, h.Ref)
		if err != nil {
			return err
		}
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
		p := filepath.Join(dir, filepath.Base(fileName))
		return os.WriteFile(p, data, 0o644)
	}
}

// Both runs each trigger in turn and stops at the first failure.
func Both(triggers ...Trigger) Trigger {
	return func(ctx context.Context, store blob.Store, h blob.Handle, fileName string) error {
		for _, t := range triggers {
			if err := t(ctx, store, h, fileName); err != nil {
				return err
			}
		}
		return nil
	}
}
