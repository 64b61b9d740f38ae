// Package compositor layers invisible OCR text underneath the existing content
// of PDF pages.
//
// The PDF side is hidden behind Engine and ContentWriter; PdfcpuEngine is the
// production implementation. The Compositor only consumes page geometry and a
// font-size solver, it never looks at pixel data.
package compositor

import (
	"io"

	"github.com/shopspring/decimal"
)

// RenderingMode is the PDF text rendering mode (Tr operator).
type RenderingMode int

const (
	RenderFill RenderingMode = iota
	RenderStroke
	RenderFillStroke
	RenderInvisible // neither fill nor stroke
	RenderFillClip
	RenderStrokeClip
	RenderFillStrokeClip
	RenderClip
)

// Engine is the PDF document collaborator. Page indices are zero-based.
type Engine interface {
	// PageCount returns the number of pages in the document.
	PageCount() int

	// MediaBox returns the width and height of a page in user space units.
	MediaBox(pageIndex int) (width, height decimal.Decimal, err error)

	// OpenPrepend opens a content writer whose operators are placed ahead of
	// the page's existing content.
	OpenPrepend(pageIndex int) (ContentWriter, error)

	// Save serializes the whole document.
	Save(w io.Writer) error
}

// ContentWriter appends operators to one page content stream. Nothing reaches
// the page before Close.
type ContentWriter interface {
	SetRenderingMode(mode RenderingMode)
	BeginText()
	EndText()

	// SetFont selects the writer's font resource at size.
	SetFont(size decimal.Decimal)

	// MoveText moves to (x, y) measured from the page origin. Within a fresh
	// text object that is the same as a relative move.
	MoveText(x, y decimal.Decimal)

	// ShowText shows a string already encoded for the writer's font.
	ShowText(encoded []byte)

	Close() error
}
