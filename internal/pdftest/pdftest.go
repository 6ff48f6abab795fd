// Package pdftest builds small, valid PDF documents for tests and inspects
// merged output. Each page is given a distinct MediaBox width so that page
// identity survives a merge and can be read back with pdfcpu.
package pdftest

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/pdfcpu/pdfcpu/pkg/api"

	"github.com/local/pdfmerger/internal/pdfconf"
)

// PageHeight is the fixed height of every generated page, in points.
const PageHeight = 300

// Build returns a PDF whose pages have the given widths, in order.
func Build(widths ...int) []byte {
	if len(widths) == 0 {
		panic("pdftest: Build needs at least one page")
	}

	// 1: catalog, 2: page tree, 3..: one page + one content stream each
	var objs []string
	objs = append(objs, "<< /Type /Catalog /Pages 2 0 R >>")

	kids := make([]string, len(widths))
	for i := range widths {
		kids[i] = fmt.Sprintf("%d 0 R", 3+2*i)
	}
	objs = append(objs, fmt.Sprintf("<< /Type /Pages /Kids [%s] /Count %d >>", strings.Join(kids, " "), len(widths)))

	for i, w := range widths {
		content := fmt.Sprintf("q 0 0 %d %d re S Q\n", w, PageHeight)
		objs = append(objs,
			fmt.Sprintf("<< /Type /Page /Parent 2 0 R /MediaBox [0 0 %d %d] /Resources << >> /Contents %d 0 R >>", w, PageHeight, 4+2*i),
			fmt.Sprintf("<< /Length %d >>\nstream\n%sendstream", len(content), content),
		)
	}

	var buf bytes.Buffer
	buf.WriteString("%PDF-1.4\n")
	offsets := make([]int, len(objs))
	for i, body := range objs {
		offsets[i] = buf.Len()
		fmt.Fprintf(&buf, "%d 0 obj\n%s\nendobj\n", i+1, body)
	}

	xref := buf.Len()
	fmt.Fprintf(&buf, "xref\n0 %d\n", len(objs)+1)
	buf.WriteString("0000000000 65535 f \n")
	for _, off := range offsets {
		fmt.Fprintf(&buf, "%010d 00000 n \n", off)
	}
	fmt.Fprintf(&buf, "trailer\n<< /Size %d /Root 1 0 R >>\nstartxref\n%d\n%%%%EOF\n", len(objs)+1, xref)
	return buf.Bytes()
}

// Garbage returns bytes that no PDF reader accepts.
func Garbage() []byte {
	return []byte("this is plainly not a portable document\n")
}

// PageWidths reads data with pdfcpu and returns each page's width in order.
func PageWidths(data []byte) ([]int, error) {
	dims, err := api.PageDims(bytes.NewReader(data), pdfconf.New())
	if err != nil {
		return nil, err
	}
	out := make([]int, len(dims))
	for i, d := range dims {
		out[i] = int(d.Width + 0.5)
	}
	return out, nil
}

// PageCount reads data with pdfcpu and returns its page count.
func PageCount(data []byte) (int, error) {
	return api.PageCount(bytes.NewReader(data), pdfconf.New())
}
