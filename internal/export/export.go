// Package export delivers a merged document to the user.
//
// A document is staged in a blob.Store, handed to a Trigger by reference, and
// released afterwards on every path, including a failing trigger.
package export

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/local/pdfmerger/internal/blob"
	"github.com/local/pdfmerger/internal/metrics"
)

// ContentType is the media type every export is tagged with.
const ContentType = "application/pdf"

// Trigger delivers a staged object under fileName. It reads the bytes back
// through the store it is given.
type Trigger func(ctx context.Context, store blob.Store, h blob.Handle, fileName string) error

// Sink stages and delivers documents.
type Sink struct {
	store          blob.Store
	releaseTimeout time.Duration
}

func NewSink(store blob.Store) *Sink {
	return &Sink{store: store, releaseTimeout: 5 * time.Second}
}

// Store returns the backing blob store.
func (s *Sink) Store() blob.Store { return s.store }

// Export stages data, runs trigger once, then releases the staged object.
func (s *Sink) Export(ctx context.Context, data []byte, fileName string, trigger Trigger) (err error) {
	if trigger == nil {
		return errors.New("export: no trigger")
	}
	backend := s.store.Backend()
	h, err := s.store.Put(ctx, data, ContentType)
	if err != nil {
		metrics.IncExport(backend, "stage_failed")
		return fmt.Errorf("stage export: %w", err)
	}
	defer func() {
		// the request context may already be gone; release regardless
		rctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.releaseTimeout)
		defer cancel()
		if rerr := s.store.Release(rctx, h.Ref); rerr != nil {
			log.Warn().Err(rerr).Str("ref", h.Ref).Str("backend", backend).Msg("release export handle failed")
		}
	}()

	if err := trigger(ctx, s.store, h, fileName); err != nil {
		metrics.IncExport(backend, "trigger_failed")
		return fmt.Errorf("deliver export: %w", err)
	}
	metrics.IncExport(backend, "success")
	log.Info().Str("file", fileName).Int("bytes", h.Size).Str("backend", backend).Msg("export delivered")
	return nil
}
