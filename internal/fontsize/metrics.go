package fontsize

import (
	"fmt"

	"github.com/pdfcpu/pdfcpu/pkg/font"
	"github.com/shopspring/decimal"
	"golang.org/x/text/encoding/charmap"
	"golang.org/x/text/unicode/norm"
)

// DefaultFont is the standard Type 1 font used for the invisible text layer.
const DefaultFont = "Helvetica"

// Metrics reports the width of a string in 1000-unit glyph space.
type Metrics interface {
	ReferenceWidth(text string) (decimal.Decimal, error)
}

// CoreFont is one of the standard 14 PDF fonts with WinAnsi encoding.
// Text is encoded before measuring so that the widths always describe the
// bytes that end up in the content stream.
type CoreFont struct {
	// Name is the PostScript name, e.g. "Helvetica".
	Name string

	// Substitute replaces runes outside Windows-1252. Zero means strict:
	// such text fails with ErrUnencodable.
	Substitute rune

	substitute byte
}

// NewCoreFont validates name and substitute against the built-in metrics.
// Symbol and ZapfDingbats are rejected since they do not use WinAnsi.
func NewCoreFont(name string, substitute rune) (*CoreFont, error) {
	if !font.IsCoreFont(name) || name == "Symbol" || name == "ZapfDingbats" {
		return nil, fmt.Errorf("%w: %q is not a WinAnsi core font", ErrUnknownFont, name)
	}

	f := &CoreFont{Name: name, Substitute: substitute}
	if substitute != 0 {
		b, ok := charmap.Windows1252.EncodeRune(substitute)
		if !ok {
			return nil, fmt.Errorf("%w: substitute %q is not encodable", ErrInvalidConfig, substitute)
		}
		f.substitute = b
	}

	return f, nil
}

// Encode converts text to Windows-1252 bytes and reports how many runes had
// to be substituted. Text is composed to NFC first so that a base letter with
// a combining accent maps onto its precomposed WinAnsi character.
func (f *CoreFont) Encode(text string) ([]byte, int, error) {
	text = norm.NFC.String(text)
	encoded := make([]byte, 0, len(text))
	substituted := 0

	for _, r := range text {
		b, ok := charmap.Windows1252.EncodeRune(r)
		if !ok {
			if f.Substitute == 0 {
				return nil, 0, fmt.Errorf("%w: %q", ErrUnencodable, r)
			}
			b = f.substitute
			substituted++
		}
		encoded = append(encoded, b)
	}

	return encoded, substituted, nil
}

// ReferenceWidth sums the AFM widths of the encoded text. Kerning is ignored.
func (f *CoreFont) ReferenceWidth(text string) (decimal.Decimal, error) {
	encoded, _, err := f.Encode(text)
	if err != nil {
		return decimal.Zero, err
	}

	total := 0
	for _, b := range encoded {
		total += font.CharWidth(f.Name, rune(b))
	}

	return decimal.NewFromInt(int64(total)), nil
}

// WidthTable is a plain per-character width table. Characters missing from
// Widths use Default.
type WidthTable struct {
	Widths  map[rune]int
	Default int
}

// ReferenceWidth sums the table widths of text.
func (t WidthTable) ReferenceWidth(text string) (decimal.Decimal, error) {
	total := 0
	for _, r := range text {
		w, ok := t.Widths[r]
		if !ok {
			w = t.Default
		}
		total += w
	}
	return decimal.NewFromInt(int64(total)), nil
}
