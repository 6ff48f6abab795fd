// Package collector holds a user's working set of source documents.
//
// Every selected file is stored together with its bytes in one entry, so the
// file list and the buffer list handed to the merge engine are always the
// same length and in the same order. Removal drops both halves at once.
package collector

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"
)

// DefaultOutputName is used when no output name has been chosen.
const DefaultOutputName = "merged.pdf"

// Source is one selected file that has not been read yet.
type Source struct {
	Name string
	Open func() (io.ReadCloser, error)
}

// SourceFile describes a loaded entry. Its bytes are immutable once read.
type SourceFile struct {
	ID      string    `json:"id"`
	Name    string    `json:"name"`
	Size    int       `json:"size"`
	AddedAt time.Time `json:"added_at"`
}

type entry struct {
	file SourceFile
	data []byte
}

// List is the ordered working set plus the user-chosen output name.
type List struct {
	mu          sync.RWMutex
	entries     []entry
	outputName  string
	defaultName string
	logger      zerolog.Logger
}

// Option configures a List.
type Option func(*List)

// WithDefaultOutputName overrides DefaultOutputName.
func WithDefaultOutputName(name string) Option {
	return func(l *List) {
		if n := cleanName(name); n != "" {
			l.defaultName = n
		}
	}
}

// WithLogger sets the logger used for read diagnostics.
func WithLogger(logger zerolog.Logger) Option {
	return func(l *List) { l.logger = logger }
}

// New returns an empty List.
func New(opts ...Option) *List {
	l := &List{defaultName: DefaultOutputName, logger: log.Logger}
	for _, o := range opts {
		o(l)
	}
	l.outputName = l.defaultName
	return l
}

// AddFiles reads every source concurrently, waits for all of them, then
// appends the ones that were read to the end of the list in selection order.
// Sources that fail to read are skipped and reported as *FileReadError.
func (l *List) AddFiles(ctx context.Context, sources []Source) ([]SourceFile, error) {
	if len(sources) == 0 {
		return nil, nil
	}

	loaded := make([]*entry, len(sources))
	readErrs := make([]error, len(sources))

	g, gctx := errgroup.WithContext(ctx)
	for i, src := range sources {
		g.Go(func() error {
			data, err := readSource(gctx, src)
			if err != nil {
				// a single unreadable file does not cancel its siblings
				readErrs[i] = &FileReadError{Name: src.Name, Err: err}
				return nil
			}
			loaded[i] = &entry{
				file: SourceFile{ID: uuid.NewString(), Name: src.Name, Size: len(data)},
				data: data,
			}
			return nil
		})
	}
	_ = g.Wait()
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	now := time.Now()
	added := make([]SourceFile, 0, len(sources))
	l.mu.Lock()
	for _, e := range loaded {
		if e == nil {
			continue
		}
		e.file.AddedAt = now
		l.entries = append(l.entries, *e)
		added = append(added, e.file)
	}
	l.mu.Unlock()

	var errs []error
	for _, err := range readErrs {
		if err != nil {
			l.logger.Warn().Err(err).Msg("error reading file")
			errs = append(errs, err)
		}
	}
	for _, f := range added {
		l.logger.Debug().Str("file_id", f.ID).Str("file", f.Name).Int("bytes", f.Size).Msg("file added")
	}
	return added, errors.Join(errs...)
}

func readSource(ctx context.Context, src Source) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if src.Open == nil {
		return nil, errors.New("no content")
	}
	rc, err := src.Open()
	if err != nil {
		return nil, fmt.Errorf("open: %w", err)
	}
	defer rc.Close()
	data, err := io.ReadAll(rc)
	if err != nil {
		return nil, fmt.Errorf("read: %w", err)
	}
	return data, nil
}

// Remove drops the entry with the given id, file and bytes together.
// It reports whether an entry was removed.
func (l *List) Remove(id string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	for i, e := range l.entries {
		if e.file.ID == id {
			l.entries = append(l.entries[:i:i], l.entries[i+1:]...)
			return true
		}
	}
	return false
}

// Clear empties the list. The output name is kept.
func (l *List) Clear() {
	l.mu.Lock()
	l.entries = nil
	l.mu.Unlock()
}

// Len returns the number of entries.
func (l *List) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.entries)
}

// Files returns the entries' descriptors in list order.
func (l *List) Files() []SourceFile {
	l.mu.RLock()
	defer l.mu.RUnlock()
	out := make([]SourceFile, len(l.entries))
	for i, e := range l.entries {
		out[i] = e.file
	}
	return out
}

// Buffers returns the entries' bytes in list order, index-aligned with Files.
func (l *List) Buffers() [][]byte {
	_, bufs := l.Snapshot()
	return bufs
}

// Snapshot returns files and buffers taken under a single lock.
func (l *List) Snapshot() ([]SourceFile, [][]byte) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	files := make([]SourceFile, len(l.entries))
	bufs := make([][]byte, len(l.entries))
	for i, e := range l.entries {
		files[i] = e.file
		bufs[i] = e.data
	}
	return files, bufs
}

// Get returns the descriptor and bytes for id.
func (l *List) Get(id string) (SourceFile, []byte, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	for _, e := range l.entries {
		if e.file.ID == id {
			return e.file, e.data, true
		}
	}
	return SourceFile{}, nil, false
}

// OutputName returns the name the merged document will be exported under.
func (l *List) OutputName() string {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.outputName
}

// SetOutputName sets the export name. Directory parts are stripped and an
// empty result falls back to the default name.
func (l *List) SetOutputName(name string) string {
	n := cleanName(name)
	l.mu.Lock()
	defer l.mu.Unlock()
	if n == "" {
		n = l.defaultName
	}
	l.outputName = n
	return n
}

func cleanName(name string) string {
	n := strings.TrimSpace(strings.ReplaceAll(name, "\\", "/"))
	if n == "" {
		return ""
	}
	n = path.Base(n)
	if n == "." || n == "/" || n == ".." {
		return ""
	}
	return n
}
