package collector

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func src(name, content string) Source {
	return Source{Name: name, Open: func() (io.ReadCloser, error) {
		return io.NopCloser(bytes.NewReader([]byte(content))), nil
	}}
}

// slowSrc finishes after delay so that completion order differs from selection order.
func slowSrc(name, content string, delay time.Duration) Source {
	return Source{Name: name, Open: func() (io.ReadCloser, error) {
		time.Sleep(delay)
		return io.NopCloser(bytes.NewReader([]byte(content))), nil
	}}
}

func failingSrc(name string) Source {
	return Source{Name: name, Open: func() (io.ReadCloser, error) {
		return nil, errors.New("permission denied")
	}}
}

type brokenReader struct{}

func (brokenReader) Read([]byte) (int, error) { return 0, errors.New("device gone") }

func names(files []SourceFile) []string {
	out := make([]string, len(files))
	for i, f := range files {
		out[i] = f.Name
	}
	return out
}

func TestAddFiles_PreservesSelectionOrder(t *testing.T) {
	l := New()

	added, err := l.AddFiles(context.Background(), []Source{
		slowSrc("a.pdf", "AAA", 30*time.Millisecond),
		slowSrc("b.pdf", "BB", 10*time.Millisecond),
		src("c.pdf", "C"),
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"a.pdf", "b.pdf", "c.pdf"}, names(added))

	files, bufs := l.Snapshot()
	assert.Equal(t, []string{"a.pdf", "b.pdf", "c.pdf"}, names(files))
	assert.Equal(t, [][]byte{[]byte("AAA"), []byte("BB"), []byte("C")}, bufs)
	assert.Equal(t, 3, files[0].Size)
}

func TestAddFiles_AppendsAfterExisting(t *testing.T) {
	l := New()
	_, err := l.AddFiles(context.Background(), []Source{src("a.pdf", "A")})
	require.NoError(t, err)
	_, err = l.AddFiles(context.Background(), []Source{src("b.pdf", "B"), src("c.pdf", "C")})
	require.NoError(t, err)

	assert.Equal(t, []string{"a.pdf", "b.pdf", "c.pdf"}, names(l.Files()))
}

func TestAddFiles_ReadFailureKeepsAlignment(t *testing.T) {
	l := New()

	added, err := l.AddFiles(context.Background(), []Source{
		src("a.pdf", "A"),
		failingSrc("locked.pdf"),
		{Name: "broken.pdf", Open: func() (io.ReadCloser, error) { return io.NopCloser(brokenReader{}), nil }},
		src("d.pdf", "D"),
	})
	require.Error(t, err)

	var readErr *FileReadError
	require.True(t, errors.As(err, &readErr))
	assert.Contains(t, err.Error(), "locked.pdf")
	assert.Contains(t, err.Error(), "broken.pdf")

	assert.Equal(t, []string{"a.pdf", "d.pdf"}, names(added))
	files, bufs := l.Snapshot()
	require.Len(t, bufs, len(files))
	assert.Equal(t, []string{"a.pdf", "d.pdf"}, names(files))
	assert.Equal(t, [][]byte{[]byte("A"), []byte("D")}, bufs)
}

func TestAddFiles_NilOpen(t *testing.T) {
	l := New()
	_, err := l.AddFiles(context.Background(), []Source{{Name: "ghost.pdf"}})

	var readErr *FileReadError
	require.True(t, errors.As(err, &readErr))
	assert.Equal(t, "ghost.pdf", readErr.Name)
	assert.Equal(t, 0, l.Len())
}

func TestAddFiles_CancelledContextAddsNothing(t *testing.T) {
	l := New()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	added, err := l.AddFiles(ctx, []Source{src("a.pdf", "A")})
	assert.ErrorIs(t, err, context.Canceled)
	assert.Empty(t, added)
	assert.Equal(t, 0, l.Len())
}

func TestAddFiles_ConcurrentBatchesDoNotLoseEntries(t *testing.T) {
	l := New()
	var wg sync.WaitGroup
	for b := 0; b < 10; b++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			batch := make([]Source, 5)
			for i := range batch {
				batch[i] = src(fmt.Sprintf("b%d-%d.pdf", b, i), "x")
			}
			_, err := l.AddFiles(context.Background(), batch)
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	files := l.Files()
	require.Len(t, files, 50)

	// each batch is appended contiguously
	for i := 0; i < len(files); i += 5 {
		prefix := files[i].Name[:3]
		for j := 0; j < 5; j++ {
			assert.Equal(t, fmt.Sprintf("%s%d.pdf", prefix, j), files[i+j].Name)
		}
	}
}

func TestRemove_ByIdentityWithDuplicateNames(t *testing.T) {
	l := New()
	added, err := l.AddFiles(context.Background(), []Source{
		src("same.pdf", "first"),
		src("other.pdf", "middle"),
		src("same.pdf", "second"),
	})
	require.NoError(t, err)
	require.Len(t, added, 3)
	assert.NotEqual(t, added[0].ID, added[2].ID)

	assert.True(t, l.Remove(added[2].ID))

	files, bufs := l.Snapshot()
	require.Len(t, files, 2)
	require.Len(t, bufs, 2)
	assert.Equal(t, added[0].ID, files[0].ID)
	assert.Equal(t, added[1].ID, files[1].ID)
	assert.Equal(t, [][]byte{[]byte("first"), []byte("middle")}, bufs)
}

func TestRemove_MiddleKeepsRelativeOrder(t *testing.T) {
	l := New()
	added, err := l.AddFiles(context.Background(), []Source{src("a.pdf", "A"), src("b.pdf", "B"), src("c.pdf", "C"), src("d.pdf", "D")})
	require.NoError(t, err)

	require.True(t, l.Remove(added[1].ID))

	files, bufs := l.Snapshot()
	assert.Equal(t, []string{"a.pdf", "c.pdf", "d.pdf"}, names(files))
	assert.Equal(t, [][]byte{[]byte("A"), []byte("C"), []byte("D")}, bufs)
}

func TestRemove_UnknownIDNoChange(t *testing.T) {
	l := New()
	_, err := l.AddFiles(context.Background(), []Source{src("a.pdf", "A")})
	require.NoError(t, err)

	assert.False(t, l.Remove("nope"))
	assert.Equal(t, 1, l.Len())
}

func TestRemove_SnapshotUnaffected(t *testing.T) {
	l := New()
	added, err := l.AddFiles(context.Background(), []Source{src("a.pdf", "A"), src("b.pdf", "B"), src("c.pdf", "C")})
	require.NoError(t, err)

	before := l.Buffers()
	require.True(t, l.Remove(added[0].ID))

	assert.Equal(t, [][]byte{[]byte("A"), []byte("B"), []byte("C")}, before)
}

func TestClear(t *testing.T) {
	l := New()
	_, err := l.AddFiles(context.Background(), []Source{src("a.pdf", "A"), src("b.pdf", "B")})
	require.NoError(t, err)
	l.SetOutputName("keep.pdf")

	l.Clear()

	assert.Equal(t, 0, l.Len())
	assert.Empty(t, l.Files())
	assert.Empty(t, l.Buffers())
	assert.Equal(t, "keep.pdf", l.OutputName())
}

func TestGet(t *testing.T) {
	l := New()
	added, err := l.AddFiles(context.Background(), []Source{src("a.pdf", "A")})
	require.NoError(t, err)

	f, data, ok := l.Get(added[0].ID)
	require.True(t, ok)
	assert.Equal(t, "a.pdf", f.Name)
	assert.Equal(t, []byte("A"), data)

	_, _, ok = l.Get("missing")
	assert.False(t, ok)
}

func TestOutputName(t *testing.T) {
	l := New()
	assert.Equal(t, "merged.pdf", l.OutputName())

	tests := []struct {
		in   string
		want string
	}{
		{"report.pdf", "report.pdf"},
		{"  spaced.pdf  ", "spaced.pdf"},
		{"../../etc/passwd", "passwd"},
		{`C:\Users\me\out.pdf`, "out.pdf"},
		{"", "merged.pdf"},
		{"   ", "merged.pdf"},
		{"..", "merged.pdf"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, l.SetOutputName(tt.in), tt.in)
		assert.Equal(t, tt.want, l.OutputName())
	}
}

func TestWithDefaultOutputName(t *testing.T) {
	l := New(WithDefaultOutputName("combined.pdf"))
	assert.Equal(t, "combined.pdf", l.OutputName())
	assert.Equal(t, "combined.pdf", l.SetOutputName(""))

	l = New(WithDefaultOutputName("  "))
	assert.Equal(t, DefaultOutputName, l.OutputName())
}
