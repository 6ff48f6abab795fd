package preview

import (
	"bytes"
	"fmt"
	"image/png"

	"github.com/gen2brain/go-fitz"
	"github.com/rs/zerolog/log"
)

// Thumbnail is a rendered first page.
type Thumbnail struct {
	PNG    []byte
	Width  int
	Height int
	Pages  int
}

// Renderer turns PDF bytes into first-page thumbnails.
type Renderer struct {
	dpi float64
}

func NewRenderer(dpi int) *Renderer {
	if dpi <= 0 {
		dpi = 36
	}
	return &Renderer{dpi: float64(dpi)}
}

// FirstPage renders page 1 of data as PNG.
func (r *Renderer) FirstPage(data []byte) (*Thumbnail, error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("empty document")
	}
	doc, err := fitz.NewFromMemory(data)
	if err != nil {
		return nil, fmt.Errorf("failed to open PDF: %w", err)
	}
	defer doc.Close()

	pages := doc.NumPage()
	if pages == 0 {
		return nil, fmt.Errorf("document has no pages")
	}

	// go-fitz pages are 0-based
	img, err := doc.ImageDPI(0, r.dpi)
	if err != nil {
		return nil, fmt.Errorf("failed to render page 1: %w", err)
	}

	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, fmt.Errorf("failed to encode PNG: %w", err)
	}

	b := img.Bounds()
	log.Debug().Int("width", b.Dx()).Int("height", b.Dy()).Float64("dpi", r.dpi).Int("png_size", buf.Len()).Msg("rendered thumbnail")
	return &Thumbnail{PNG: buf.Bytes(), Width: b.Dx(), Height: b.Dy(), Pages: pages}, nil
}
