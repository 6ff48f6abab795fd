// Package service is the action boundary between the HTTP surfaces and the
// collector, merge engine and export sink. Every user action lands here, and
// every failure leaves here as a typed error or a logged diagnostic.
package service

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"time"

	"github.com/local/pdfmerger/internal/collector"
	"github.com/local/pdfmerger/internal/export"
	"github.com/local/pdfmerger/internal/filetype"
	"github.com/local/pdfmerger/internal/limiter"
	"github.com/local/pdfmerger/internal/logger"
	"github.com/local/pdfmerger/internal/merge"
	"github.com/local/pdfmerger/internal/metrics"
	"github.com/local/pdfmerger/internal/preview"
	"github.com/local/pdfmerger/internal/session"
)

// sniffLen is how many leading bytes the picker filter inspects.
const sniffLen = 3072

// InsufficientInputMessage is the user-facing alert for a merge with fewer than two files.
const InsufficientInputMessage = "Please select at least two PDFs."

// ErrFileNotFound is returned for file ids that are not in the session.
var ErrFileNotFound = errors.New("file not found")

// ErrBusy is returned when the session already has a merge running or the
// server is at its merge limit.
var ErrBusy = errors.New("merge already in progress")

// Dependencies wires the service.
type Dependencies struct {
	Sessions *session.Registry
	Sink     *export.Sink
	Detector *filetype.Detector
	Preview  *preview.Renderer
	Limiter  *limiter.Gate
	// SaveCopyDir, when set, receives a copy of every merged document.
	SaveCopyDir string
}

type Service struct {
	deps Dependencies
}

func New(deps Dependencies) *Service {
	if deps.Detector == nil {
		deps.Detector = filetype.New()
	}
	if deps.Preview == nil {
		deps.Preview = preview.NewRenderer(0)
	}
	if deps.Limiter == nil {
		deps.Limiter = limiter.New(limiter.Options{})
	}
	return &Service{deps: deps}
}

// Sessions exposes the registry for session lifecycle calls.
func (s *Service) Sessions() *session.Registry { return s.deps.Sessions }

// Upload is one file as selected in the picker.
type Upload struct {
	Name string
	Open func() (io.ReadCloser, error)
}

// FromMultipart adapts multipart file parts to uploads, keeping their order.
func FromMultipart(headers []*multipart.FileHeader) []Upload {
	out := make([]Upload, len(headers))
	for i, h := range headers {
		out[i] = Upload{
			Name: h.Filename,
			Open: func() (io.ReadCloser, error) { return h.Open() },
		}
	}
	return out
}

// Rejection is a selected file that did not pass the PDF filter or could not be read.
type Rejection struct {
	Name   string `json:"name"`
	Reason string `json:"reason"`
}

// AddResult reports the outcome of an AddFiles action.
type AddResult struct {
	Added    []collector.SourceFile `json:"added"`
	Rejected []Rejection            `json:"rejected,omitempty"`
	Failed   []Rejection            `json:"failed,omitempty"`
}

// AddFiles filters uploads to PDFs and appends the readable ones to the session.
func (s *Service) AddFiles(ctx context.Context, sessionID string, uploads []Upload) (AddResult, error) {
	sess, err := s.deps.Sessions.Get(sessionID)
	if err != nil {
		return AddResult{}, err
	}
	l := logger.ForSession(sessionID)

	var res AddResult
	sources := make([]collector.Source, 0, len(uploads))
	for _, u := range uploads {
		if head, ok := sniff(u.Open); ok {
			if info := s.deps.Detector.Detect(u.Name, head); !info.Accepted {
				metrics.IncFileRead("rejected")
				l.Info().Str("file", u.Name).Str("mime", info.MIMEType).Msg("file rejected by pdf filter")
				res.Rejected = append(res.Rejected, Rejection{Name: u.Name, Reason: "not a PDF (" + info.MIMEType + ")"})
				continue
			}
		}
		sources = append(sources, collector.Source{Name: u.Name, Open: u.Open})
	}

	added, err := sess.List.AddFiles(ctx, sources)
	res.Added = added
	for range added {
		metrics.IncFileRead("ok")
	}
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return res, ctxErr
		}
		for _, fe := range readErrors(err) {
			metrics.IncFileRead("failed")
			res.Failed = append(res.Failed, Rejection{Name: fe.Name, Reason: fe.Err.Error()})
		}
	}
	l.Info().Int("added", len(res.Added)).Int("rejected", len(res.Rejected)).Int("failed", len(res.Failed)).
		Int("total", sess.List.Len()).Msg("files selected")
	return res, nil
}

// sniff reads the leading bytes of an upload. ok is false when the upload
// cannot be opened; the collector then reports the read failure itself.
func sniff(open func() (io.ReadCloser, error)) ([]byte, bool) {
	if open == nil {
		return nil, false
	}
	rc, err := open()
	if err != nil {
		return nil, false
	}
	defer rc.Close()
	var buf bytes.Buffer
	if _, err := io.CopyN(&buf, rc, sniffLen); err != nil && !errors.Is(err, io.EOF) {
		return nil, false
	}
	return buf.Bytes(), true
}

func readErrors(err error) []*collector.FileReadError {
	var out []*collector.FileReadError
	if joined, ok := err.(interface{ Unwrap() []error }); ok {
		for _, e := range joined.Unwrap() {
			out = append(out, readErrors(e)...)
		}
		return out
	}
	var fe *collector.FileReadError
	if errors.As(err, &fe) {
		out = append(out, fe)
	}
	return out
}

// RemoveFile drops one file from the session by identity.
func (s *Service) RemoveFile(sessionID, fileID string) error {
	sess, err := s.deps.Sessions.Get(sessionID)
	if err != nil {
		return err
	}
	if !sess.List.Remove(fileID) {
		return ErrFileNotFound
	}
	l := logger.ForSession(sessionID)
	l.Info().Str("file_id", fileID).Int("total", sess.List.Len()).Msg("file removed")
	return nil
}

// Clear empties the session's working set.
func (s *Service) Clear(sessionID string) error {
	sess, err := s.deps.Sessions.Get(sessionID)
	if err != nil {
		return err
	}
	sess.List.Clear()
	l := logger.ForSession(sessionID)
	l.Info().Msg("files cleared")
	return nil
}

// SetOutputName updates the export name and returns the stored value.
func (s *Service) SetOutputName(sessionID, name string) (string, error) {
	sess, err := s.deps.Sessions.Get(sessionID)
	if err != nil {
		return "", err
	}
	return sess.List.SetOutputName(name), nil
}

// FileView is a listed file with its page count (-1 when unreadable).
type FileView struct {
	collector.SourceFile
	Pages int `json:"pages"`
}

// View is a session listing.
type View struct {
	SessionID  string     `json:"session_id"`
	OutputName string     `json:"output_name"`
	Files      []FileView `json:"files"`
}

// Describe lists the session's files in merge order.
func (s *Service) Describe(sessionID string) (View, error) {
	sess, err := s.deps.Sessions.Get(sessionID)
	if err != nil {
		return View{}, err
	}
	files, bufs := sess.List.Snapshot()
	v := View{SessionID: sess.ID, OutputName: sess.List.OutputName(), Files: make([]FileView, len(files))}
	for i, f := range files {
		pages, err := merge.PageCount(bufs[i])
		if err != nil {
			pages = -1
		}
		v.Files[i] = FileView{SourceFile: f, Pages: pages}
	}
	return v, nil
}

// Thumbnail renders the first page of one file.
func (s *Service) Thumbnail(sessionID, fileID string) (*preview.Thumbnail, error) {
	sess, err := s.deps.Sessions.Get(sessionID)
	if err != nil {
		return nil, err
	}
	_, data, ok := sess.List.Get(fileID)
	if !ok {
		return nil, ErrFileNotFound
	}
	return s.deps.Preview.FirstPage(data)
}

// InputError names the source file behind a merge.DecodeError.
type InputError struct {
	File collector.SourceFile
	Err  error
}

func (e *InputError) Error() string { return fmt.Sprintf("%s: %v", e.File.Name, e.Err) }
func (e *InputError) Unwrap() error { return e.Err }

// MergeOutcome summarizes a delivered merge.
type MergeOutcome struct {
	FileName string
	Inputs   int
	Pages    int
	Bytes    int
}

// Merge concatenates the session's files in list order and hands the result
// to trigger under the session's output name. The working set is not changed.
func (s *Service) Merge(ctx context.Context, sessionID string, trigger export.Trigger) (MergeOutcome, error) {
	sess, err := s.deps.Sessions.Get(sessionID)
	if err != nil {
		return MergeOutcome{}, err
	}
	l := logger.ForSession(sessionID)
	release, ok := s.deps.Limiter.Allow(sessionID)
	if !ok {
		metrics.ObserveMerge("busy", 0, 0)
		l.Info().Msg("merge refused: busy")
		return MergeOutcome{}, ErrBusy
	}
	defer release()

	files, bufs := sess.List.Snapshot()
	start := time.Now()

	res, err := merge.Run(ctx, bufs)
	if err != nil {
		var insufficient *merge.InsufficientInputError
		var decodeErr *merge.DecodeError
		switch {
		case errors.As(err, &insufficient):
			metrics.ObserveMerge("insufficient_input", 0, time.Since(start))
			l.Info().Int("files", len(files)).Msg("merge refused: not enough files")
			return MergeOutcome{}, err
		case errors.As(err, &decodeErr):
			metrics.ObserveMerge("decode_error", 0, time.Since(start))
			f := files[decodeErr.Index]
			l.Warn().Err(decodeErr.Err).Int("index", decodeErr.Index).Str("file_id", f.ID).Str("file", f.Name).Msg("merge aborted: input not a valid PDF")
			return MergeOutcome{}, &InputError{File: f, Err: err}
		default:
			metrics.ObserveMerge("encode_error", 0, time.Since(start))
			l.Error().Err(err).Msg("merge failed")
			return MergeOutcome{}, err
		}
	}
	metrics.ObserveMerge("success", res.Pages, res.Duration)

	name := sess.List.OutputName()
	if s.deps.SaveCopyDir != "" {
		trigger = export.Both(export.SaveToDir(s.deps.SaveCopyDir), trigger)
	}
	if err := s.deps.Sink.Export(ctx, res.Data, name, trigger); err != nil {
		l.Error().Err(err).Str("file", name).Msg("export failed")
		return MergeOutcome{}, err
	}

	out := MergeOutcome{FileName: name, Inputs: len(bufs), Pages: res.Pages, Bytes: len(res.Data)}
	l.Info().Str("file", name).Int("inputs", out.Inputs).Int("pages", out.Pages).Int("bytes", out.Bytes).
		Dur("took", time.Since(start)).Msg("merge exported")
	return out, nil
}
