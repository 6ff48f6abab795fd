// Package merge concatenates the pages of several PDF documents into one.
//
// The engine holds no state: callers pass the ordered source buffers and get
// back the serialized result. Decoding, page copying and serialization are
// delegated to pdfcpu.
package merge

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"time"

	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/rs/zerolog/log"

	"github.com/local/pdfmerger/internal/pdfconf"
)

// Result is a merged document together with the page accounting used to build it.
type Result struct {
	Data       []byte
	Pages      int
	InputPages []int
	Duration   time.Duration
}

// Merge returns one PDF holding every page of every buffer, buffers in the
// order given and each buffer's pages in their original order.
func Merge(ctx context.Context, buffers [][]byte) ([]byte, error) {
	res, err := Run(ctx, buffers)
	if err != nil {
		return nil, err
	}
	return res.Data, nil
}

// Run is Merge with page accounting.
//
// Inputs are decoded one at a time in list order. The first input that fails
// to decode aborts the run with a *DecodeError before any later input is read
// and before any output is assembled.
func Run(ctx context.Context, buffers [][]byte) (Result, error) {
	if len(buffers) < MinInputs {
		return Result{}, &InsufficientInputError{Got: len(buffers)}
	}
	start := time.Now()

	inputPages := make([]int, len(buffers))
	total := 0
	for i, buf := range buffers {
		if err := ctx.Err(); err != nil {
			return Result{}, err
		}
		n, err := decode(buf)
		if err != nil {
			log.Debug().Err(err).Int("index", i).Msg("merge input rejected")
			return Result{}, &DecodeError{Index: i, Err: err}
		}
		inputPages[i] = n
		total += n
	}
	if err := ctx.Err(); err != nil {
		return Result{}, err
	}

	rsc := make([]io.ReadSeeker, len(buffers))
	for i, buf := range buffers {
		rsc[i] = bytes.NewReader(buf)
	}
	var out bytes.Buffer
	if err := api.MergeRaw(rsc, &out, false, pdfconf.New()); err != nil {
		return Result{}, &EncodeError{Err: err}
	}

	res := Result{
		Data:       out.Bytes(),
		Pages:      total,
		InputPages: inputPages,
		Duration:   time.Since(start),
	}
	log.Debug().Int("inputs", len(buffers)).Int("pages", total).Int("bytes", len(res.Data)).
		Dur("took", res.Duration).Msg("merged documents")
	return res, nil
}

// decode reads and validates one source and returns its page count.
func decode(buf []byte) (int, error) {
	if len(buf) == 0 {
		return 0, fmt.Errorf("empty document")
	}
	pdfCtx, err := api.ReadContext(bytes.NewReader(buf), pdfconf.New())
	if err != nil {
		return 0, fmt.Errorf("read: %w", err)
	}
	if err := api.ValidateContext(pdfCtx); err != nil {
		return 0, fmt.Errorf("validate: %w", err)
	}
	if pdfCtx.PageCount <= 0 {
		return 0, fmt.Errorf("document has no pages")
	}
	return pdfCtx.PageCount, nil
}

// PageCount returns the number of pages in a single PDF buffer.
func PageCount(buf []byte) (int, error) {
	n, err := api.PageCount(bytes.NewReader(buf), pdfconf.New())
	if err != nil {
		return 0, fmt.Errorf("pdf page count failed: %w", err)
	}
	return n, nil
}
