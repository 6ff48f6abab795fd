package filetype

import (
	"path/filepath"
	"strings"

	"github.com/gabriel-vasile/mimetype"
	"github.com/rs/zerolog/log"
)

// PDFMediaType is the only media type the picker accepts.
const PDFMediaType = "application/pdf"

// FileTypeInfo contains detected file type information
type FileTypeInfo struct {
	MIMEType  string
	Extension string
	NameIsPDF bool
	BytesPDF  bool
	Accepted  bool
}

// Detector applies the picker's PDF filter to selected files.
type Detector struct{}

// New creates a new file type detector
func New() *Detector {
	return &Detector{}
}

// Detect classifies a selected file from its name and leading bytes.
// A file passes the filter when either its name carries a .pdf extension or
// its magic bytes say PDF, the same leniency a browser picker's accept
// attribute shows. Content is not validated here; the merge engine does that.
func (d *Detector) Detect(name string, head []byte) *FileTypeInfo {
	mtype := mimetype.Detect(head)
	info := &FileTypeInfo{
		MIMEType:  mtype.String(),
		Extension: mtype.Extension(),
		NameIsPDF: strings.EqualFold(filepath.Ext(name), ".pdf"),
		BytesPDF:  mtype.Is(PDFMediaType),
	}
	info.Accepted = info.NameIsPDF || info.BytesPDF

	if info.NameIsPDF && !info.BytesPDF {
		log.Debug().Str("file", name).Str("mime", info.MIMEType).Msg("pdf extension but content sniffed otherwise")
	}
	return info
}
