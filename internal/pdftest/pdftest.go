// Package pdftest generates small scanned-looking PDFs for tests.
package pdftest

import (
	"bytes"
	"fmt"
)

// Options describes a generated document.
type Options struct {
	Pages  int
	Width  float64
	Height float64

	// Origin shifts the media box lower-left corner.
	OriginX, OriginY float64
}

// PageContent is the content stream of the generated page at index i.
func PageContent(i int) string {
	return fmt.Sprintf("0.5 g %d %d 40 20 re f", 10+i*50, 10+i*30)
}

// Generate writes a minimal valid PDF. Pages share their media box and
// resources through the page tree root, so both are inherited.
func Generate(opts Options) []byte {
	if opts.Pages <= 0 {
		opts.Pages = 1
	}
	if opts.Width == 0 {
		opts.Width = 612
	}
	if opts.Height == 0 {
		opts.Height = 792
	}

	var (
		buf     bytes.Buffer
		offsets []int
	)
	object := func(body string) {
		offsets = append(offsets, buf.Len())
		fmt.Fprintf(&buf, "%d 0 obj\n%s\nendobj\n", len(offsets), body)
	}

	buf.WriteString("%PDF-1.4\n%\xe2\xe3\xcf\xd3\n")

	kids := ""
	for i := 0; i < opts.Pages; i++ {
		kids += fmt.Sprintf("%d 0 R ", 3+i*2)
	}

	object("<< /Type /Catalog /Pages 2 0 R >>")
	object(fmt.Sprintf("<< /Type /Pages /Kids [%s] /Count %d /MediaBox [%g %g %g %g] /Resources << /ProcSet [/PDF] >> >>",
		kids, opts.Pages, opts.OriginX, opts.OriginY, opts.OriginX+opts.Width, opts.OriginY+opts.Height))

	for i := 0; i < opts.Pages; i++ {
		content := PageContent(i)
		object(fmt.Sprintf("<< /Type /Page /Parent 2 0 R /Contents %d 0 R >>", 4+i*2))
		object(fmt.Sprintf("<< /Length %d >>\nstream\n%s\nendstream", len(content), content))
	}

	xref := buf.Len()
	fmt.Fprintf(&buf, "xref\n0 %d\n", len(offsets)+1)
	buf.WriteString("0000000000 65535 f \n")
	for _, off := range offsets {
		fmt.Fprintf(&buf, "%010d 00000 n \n", off)
	}
	fmt.Fprintf(&buf, "trailer\n<< /Size %d /Root 1 0 R >>\nstartxref\n%d\n%%%%EOF\n", len(offsets)+1, xref)

	return buf.Bytes()
}
