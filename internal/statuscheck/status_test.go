package statuscheck

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/local/pdfmerger/internal/blob"
)

type failingPinger struct{ err error }

func (f failingPinger) Ping(context.Context) error { return f.err }
func (f failingPinger) Backend() string { return "redis" }

type slowPinger struct{}

func (slowPinger) Ping(ctx context.Context) error {
	<-ctx.Done()
	return ctx.Err()
}
func (slowPinger) Backend() string { return "s3" }

type fixedCount int

func (n fixedCount) Len() int { return int(n) }

func TestSummary_MemoryBackend(t *testing.T) {
	c := New(Options{Blob: blob.NewMemoryStore(), Sessions: fixedCount(3)})
	s := c.Summary(context.Background())
	assert.True(t, s.Blob.OK)
	assert.Equal(t, "memory", s.Blob.Backend)
	assert.Equal(t, 3, s.Sessions)
}

func TestSummary_Failures(t *testing.T) {
	s := New(Options{}).Summary(context.Background())
	assert.False(t, s.Blob.OK)
	assert.Equal(t, "store unavailable", s.Blob.Message)

	long := errors.New(strings.Repeat("x", 300))
	s = New(Options{Blob: failingPinger{err: long}}).Summary(context.Background())
	assert.False(t, s.Blob.OK)
	assert.Len(t, s.Blob.Message, 120)
	assert.Equal(t, "redis", s.Blob.Backend)
}

func TestSummary_Timeout(t *testing.T) {
	s := New(Options{Blob: slowPinger{}, Timeout: 10 * time.Millisecond}).Summary(context.Background())
	assert.False(t, s.Blob.OK)
	assert.Equal(t, "timeout", s.Blob.Message)
}
