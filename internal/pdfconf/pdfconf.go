// Package pdfconf builds pdfcpu configurations for in-memory use.
package pdfconf

import (
	"sync"

	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
)

var disableConfigDir sync.Once

// New returns a fresh relaxed-validation configuration. pdfcpu mutates the
// configuration during a run, so callers never share one.
//
// The first call turns off pdfcpu's on-disk config directory; model.ConfigPath
// is a package global and is only ever written here.
func New() *model.Configuration {
	disableConfigDir.Do(func() { model.ConfigPath = "disable" })
	conf := model.NewDefaultConfiguration()
	conf.ValidationMode = model.ValidationRelaxed
	return conf
}
