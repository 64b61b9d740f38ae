package compositor

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"testing"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"searchpdf/internal/fontsize"
	"searchpdf/pkg/models"
)

// fakeEngine records the operators written per page.
type fakeEngine struct {
	width, height decimal.Decimal
	pages         int
	ops           map[int][]string
	opened        []int
	closed        []int
	mediaBoxErr   error
	closeErr      error
}

func newFakeEngine(pages int, width, height string) *fakeEngine {
	return &fakeEngine{
		width:  decimal.RequireFromString(width),
		height: decimal.RequireFromString(height),
		pages:  pages,
		ops:    make(map[int][]string),
	}
}

func (e *fakeEngine) PageCount() int { return e.pages }

func (e *fakeEngine) MediaBox(pageIndex int) (decimal.Decimal, decimal.Decimal, error) {
	if e.mediaBoxErr != nil {
		return decimal.Zero, decimal.Zero, e.mediaBoxErr
	}
	return e.width, e.height, nil
}

func (e *fakeEngine) OpenPrepend(pageIndex int) (ContentWriter, error) {
	e.opened = append(e.opened, pageIndex)
	return &fakeWriter{engine: e, page: pageIndex}, nil
}

func (e *fakeEngine) Save(w io.Writer) error { return nil }

type fakeWriter struct {
	engine *fakeEngine
	page   int
}

func (w *fakeWriter) record(format string, args ...any) {
	w.engine.ops[w.page] = append(w.engine.ops[w.page], fmt.Sprintf(format, args...))
}

func (w *fakeWriter) SetRenderingMode(mode RenderingMode) { w.record("Tr %d", mode) }
func (w *fakeWriter) BeginText()                          { w.record("BT") }
func (w *fakeWriter) EndText()                            { w.record("ET") }
func (w *fakeWriter) SetFont(size decimal.Decimal)        { w.record("Tf %s", size) }
func (w *fakeWriter) MoveText(x, y decimal.Decimal)       { w.record("Td %s %s", x, y) }
func (w *fakeWriter) ShowText(encoded []byte)             { w.record("Tj %s", encoded) }

func (w *fakeWriter) Close() error {
	w.engine.closed = append(w.engine.closed, w.page)
	return w.engine.closeErr
}

func pos(x, y string) models.Position {
	return models.NewPosition(decimal.RequireFromString(x), decimal.RequireFromString(y))
}

func box(x0, y0, x1, y1 string) models.BoundingBox {
	return models.BoundingBox{
		TopLeft:     pos(x0, y0),
		TopRight:    pos(x1, y0),
		BottomRight: pos(x1, y1),
		BottomLeft:  pos(x0, y1),
	}
}

func newTestCompositor(t *testing.T) *Compositor {
	t.Helper()
	font, err := fontsize.NewCoreFont(fontsize.DefaultFont, '?')
	require.NoError(t, err)

	return &Compositor{
		Solver: &fontsize.DirectSolver{Metrics: fontsize.WidthTable{Default: 500}, Precision: 2},
		Font:   font,
		Logger: zerolog.Nop(),
	}
}

func TestCompositePlacesWords(t *testing.T) {
	engine := newFakeEngine(1, "600", "800")
	pages := []models.Page{{
		Index: 0,
		Words: []models.Word{
			// Full page width: target 600, "TEST" = 2000 units -> 300.
			{Text: "TEST", BoundingBox: box("0", "0.05", "1", "0.1")},
			{Text: "ab", BoundingBox: box("0.25", "0.5", "0.5", "0.525")},
		},
	}}

	report, err := newTestCompositor(t).Composite(context.Background(), engine, pages)
	require.NoError(t, err)

	assert.Equal(t, []string{
		"Tr 3",
		"BT", "Tf 300", "Td 0 720", "Tj TEST", "ET",
		"BT", "Tf 150", "Td 150 380", "Tj ab", "ET",
	}, engine.ops[0])
	assert.Equal(t, []int{0}, engine.closed)

	assert.Equal(t, 2, report.WordsPlaced)
	assert.Equal(t, 0, report.WordsSkipped)
	assert.Equal(t, 1, report.PagesOverlaid)
}

func TestCompositeFlipsYAxis(t *testing.T) {
	engine := newFakeEngine(1, "612", "800")
	pages := []models.Page{{
		Words: []models.Word{{Text: "x", BoundingBox: box("0.1", "0.05", "0.2", "0.1")}},
	}}

	_, err := newTestCompositor(t).Composite(context.Background(), engine, pages)
	require.NoError(t, err)

	// 800 - 0.1*800 = 720
	assert.Contains(t, engine.ops[0], "Td 61.2 720")
}

func TestCompositeSkipsDegenerateWords(t *testing.T) {
	engine := newFakeEngine(1, "600", "800")
	font, err := fontsize.NewCoreFont(fontsize.DefaultFont, 0)
	require.NoError(t, err)

	c := newTestCompositor(t)
	c.Font = font

	pages := []models.Page{{
		Words: []models.Word{
			{Text: "", BoundingBox: box("0.1", "0.1", "0.2", "0.2")},
			{Text: "zero", BoundingBox: box("0.3", "0.1", "0.3", "0.2")}, // zero width box
			{Text: "☃", BoundingBox: box("0.4", "0.1", "0.5", "0.2")},    // strict encoding
			{Text: "ok", BoundingBox: box("0.5", "0.1", "0.6", "0.2")},
		},
	}}

	report, err := c.Composite(context.Background(), engine, pages)
	require.NoError(t, err)

	page := report.Pages[0]
	assert.Equal(t, 1, page.EmptyWords)
	assert.Equal(t, 1, page.UnsolvedWords)
	assert.Equal(t, 1, page.UnencodableWords)
	assert.Equal(t, 1, page.WordsPlaced)
	assert.Equal(t, 3, report.WordsSkipped)

	// Only the placed word produced a text object.
	assert.Equal(t, []string{"Tr 3", "BT", "Tf 60", "Td 300 640", "Tj ok", "ET"}, engine.ops[0])
}

func TestCompositeEmptyWordIsDeterministic(t *testing.T) {
	pages := []models.Page{{Words: []models.Word{{Text: "", BoundingBox: box("0", "0", "1", "1")}}}}

	for i := 0; i < 3; i++ {
		engine := newFakeEngine(1, "600", "800")
		report, err := newTestCompositor(t).Composite(context.Background(), engine, pages)
		require.NoError(t, err)
		assert.Equal(t, 1, report.Pages[0].EmptyWords)
		assert.Equal(t, []string{"Tr 3"}, engine.ops[0])
	}
}

func TestCompositePageCountMismatch(t *testing.T) {
	engine := newFakeEngine(3, "600", "800")
	pages := []models.Page{
		{Index: 0, Words: []models.Word{{Text: "one", BoundingBox: box("0.1", "0.1", "0.2", "0.2")}}},
		{Index: 7, Words: []models.Word{{Text: "ghost", BoundingBox: box("0.1", "0.1", "0.2", "0.2")}}},
	}

	report, err := newTestCompositor(t).Composite(context.Background(), engine, pages)
	require.NoError(t, err)

	assert.Equal(t, []int{0}, engine.opened, "pages without OCR get no writer")
	require.Len(t, report.Pages, 3)
	assert.False(t, report.Pages[0].Skipped)
	assert.True(t, report.Pages[1].Skipped)
	assert.True(t, report.Pages[2].Skipped)
	assert.Equal(t, []int{7}, report.IgnoredPages)
}

func TestCompositeClosesWriterOnError(t *testing.T) {
	engine := newFakeEngine(2, "600", "800")
	engine.closeErr = errors.New("disk full")
	pages := []models.Page{{Index: 0}, {Index: 1}}

	_, err := newTestCompositor(t).Composite(context.Background(), engine, pages)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "disk full")
	assert.Equal(t, []int{0}, engine.closed, "the run stops at the first failing page")
}

func TestCompositeMediaBoxErrorIsFatal(t *testing.T) {
	engine := newFakeEngine(1, "600", "800")
	engine.mediaBoxErr = ErrDocumentIO
	pages := []models.Page{{Index: 0}}

	report, err := newTestCompositor(t).Composite(context.Background(), engine, pages)
	assert.Nil(t, report)
	assert.ErrorIs(t, err, ErrDocumentIO)
	assert.Empty(t, engine.opened)
}

func TestCompositeHonorsCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := newTestCompositor(t).Composite(ctx, newFakeEngine(1, "600", "800"), []models.Page{{Index: 0}})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestContentBuffer(t *testing.T) {
	c := &contentBuffer{fontName: "FOcr0"}
	c.SetRenderingMode(RenderInvisible)
	c.BeginText()
	c.SetFont(decimal.RequireFromString("12.50"))
	c.MoveText(decimal.RequireFromString("61.200000"), decimal.RequireFromString("719.99999"))
	c.ShowText([]byte("a(b)\\c\xf6\n"))
	c.EndText()

	want := strings.Join([]string{
		"3 Tr",
		"BT",
		"/FOcr0 12.5 Tf",
		"61.2 720 Td",
		// High bytes are written raw.
		"(a\\(b\\)\\\\c\xf6\\n) Tj",
		"ET",
		"",
	}, "\n")
	assert.Equal(t, want, c.buf.String())
	assert.Equal(t, 1, c.shown)
}
