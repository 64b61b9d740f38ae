package compositor

import (
	"bytes"
	"fmt"

	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/types"
	"github.com/shopspring/decimal"
)

// coordinatePrecision limits the decimals written for positions.
const coordinatePrecision = 4

// contentBuffer renders ContentWriter calls as PDF content stream operators.
type contentBuffer struct {
	buf      bytes.Buffer
	fontName string
	shown    int
}

func (c *contentBuffer) SetRenderingMode(mode RenderingMode) {
	fmt.Fprintf(&c.buf, "%d Tr\n", mode)
}

func (c *contentBuffer) BeginText() {
	c.buf.WriteString("BT\n")
}

func (c *contentBuffer) EndText() {
	c.buf.WriteString("ET\n")
}

func (c *contentBuffer) SetFont(size decimal.Decimal) {
	fmt.Fprintf(&c.buf, "/%s %s Tf\n", c.fontName, size.String())
}

func (c *contentBuffer) MoveText(x, y decimal.Decimal) {
	fmt.Fprintf(&c.buf, "%s %s Td\n", formatNumber(x), formatNumber(y))
}

// ShowText writes encoded as a literal string. Bytes above 0x7f stay raw,
// which literal strings allow.
func (c *contentBuffer) ShowText(encoded []byte) {
	escaped, _ := types.Escape(string(encoded))
	fmt.Fprintf(&c.buf, "(%s) Tj\n", *escaped)
	c.shown++
}

func formatNumber(d decimal.Decimal) string {
	return d.Round(coordinatePrecision).String()
}
