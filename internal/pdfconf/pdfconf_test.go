package pdfconf

import (
	"sync"
	"testing"

	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew_ConcurrentCallsGetDistinctConfigs(t *testing.T) {
	const n = 16
	confs := make([]*model.Configuration, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			confs[i] = New()
		}()
	}
	wg.Wait()

	seen := map[*model.Configuration]bool{}
	for _, c := range confs {
		require.NotNil(t, c)
		assert.Equal(t, model.ValidationRelaxed, c.ValidationMode)
		assert.False(t, seen[c])
		seen[c] = true
	}
	assert.Equal(t, "disable", model.ConfigPath)
}
