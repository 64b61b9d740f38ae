package models

import "github.com/shopspring/decimal"

// Position is a point in normalized page-fraction coordinates (0.0 to 1.0),
// origin in the top-left corner of the page.
type Position struct {
	X decimal.Decimal // Fraction of page width
	Y decimal.Decimal // Fraction of page height
}

// NewPosition creates a Position from two decimals.
func NewPosition(x, y decimal.Decimal) Position {
	return Position{X: x, Y: y}
}

// Equal reports whether both coordinates are numerically equal.
func (p Position) Equal(other Position) bool {
	return p.X.Equal(other.X) && p.Y.Equal(other.Y)
}

// BoundingBox is the quadrilateral enclosing a recognized word.
// Corners keep the order in which the OCR engine emitted them; the order is
// trusted and never validated.
type BoundingBox struct {
	TopLeft     Position
	TopRight    Position
	BottomRight Position
	BottomLeft  Position
}

// Width returns the wider of the box's top and bottom edges scaled to
// absolute units of pageWidth.
func (b BoundingBox) Width(pageWidth decimal.Decimal) decimal.Decimal {
	bottomWidth := b.BottomRight.X.Sub(b.BottomLeft.X).Mul(pageWidth)
	topWidth := b.TopRight.X.Sub(b.TopLeft.X).Mul(pageWidth)

	return decimal.Max(bottomWidth, topWidth)
}

// Equal reports whether all four corners are equal.
func (b BoundingBox) Equal(other BoundingBox) bool {
	return b.TopLeft.Equal(other.TopLeft) &&
		b.TopRight.Equal(other.TopRight) &&
		b.BottomRight.Equal(other.BottomRight) &&
		b.BottomLeft.Equal(other.BottomLeft)
}

// Word is a single recognized word. Text may be empty when the OCR engine
// reported a word without symbols.
type Word struct {
	BoundingBox BoundingBox
	Text        string
}

// Equal reports whether the words carry the same text and geometry.
func (w Word) Equal(other Word) bool {
	return w.Text == other.Text && w.BoundingBox.Equal(other.BoundingBox)
}

// Page is one OCR page. Index is zero-based and matches the physical PDF page
// index; Words keep the OCR engine's emission order.
type Page struct {
	Index int
	Words []Word
}

// Equal reports whether two pages are structurally equal.
func (p Page) Equal(other Page) bool {
	if p.Index != other.Index || len(p.Words) != len(other.Words) {
		return false
	}
	for i := range p.Words {
		if !p.Words[i].Equal(other.Words[i]) {
			return false
		}
	}
	return true
}

// PagesEqual reports whether two page sequences are structurally equal.
func PagesEqual(a, b []Page) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if !a[i].Equal(b[i]) {
			return false
		}
	}
	return true
}

// WordCount returns the total number of words across pages.
func WordCount(pages []Page) int {
	total := 0
	for _, page := range pages {
		total += len(page.Words)
	}
	return total
}
