package compositor

import (
	"fmt"
	"io"

	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/types"
	"github.com/shopspring/decimal"
)

// fontResourcePrefix names the font resource added to every overlaid page.
const fontResourcePrefix = "FOcr"

// PdfcpuEngine implements Engine on top of a pdfcpu context.
type PdfcpuEngine struct {
	ctx      *model.Context
	baseFont string
	fontRef  *types.IndirectRef
}

// Open reads and validates a PDF in relaxed mode. baseFont is the standard
// Type 1 font used by all content writers.
func Open(rs io.ReadSeeker, baseFont string) (*PdfcpuEngine, error) {
	const op = "Open"

	// Never touch the user's pdfcpu config dir.
	api.DisableConfigDir()

	conf := model.NewDefaultConfiguration()
	conf.ValidationMode = model.ValidationRelaxed

	ctx, err := api.ReadAndValidate(rs, conf)
	if err != nil {
		return nil, documentIOError(op, err, "failed to read PDF")
	}

	if err := ctx.EnsurePageCount(); err != nil {
		return nil, documentIOError(op, err, "failed to count pages")
	}

	return &PdfcpuEngine{ctx: ctx, baseFont: baseFont}, nil
}

// PageCount implements Engine.
func (e *PdfcpuEngine) PageCount() int {
	return e.ctx.PageCount
}

// MediaBox implements Engine using the effective (possibly inherited) media box.
func (e *PdfcpuEngine) MediaBox(pageIndex int) (decimal.Decimal, decimal.Decimal, error) {
	const op = "MediaBox"

	_, inherited, err := e.page(op, pageIndex)
	if err != nil {
		return decimal.Zero, decimal.Zero, err
	}

	box := inherited.MediaBox
	return decimal.NewFromFloat(box.Width()), decimal.NewFromFloat(box.Height()), nil
}

// OpenPrepend implements Engine. The returned writer wraps its operators in
// q/Q so that no graphics or text state leaks into the original content.
func (e *PdfcpuEngine) OpenPrepend(pageIndex int) (ContentWriter, error) {
	const op = "OpenPrepend"

	pageDict, inherited, err := e.page(op, pageIndex)
	if err != nil {
		return nil, err
	}

	resources := types.NewDict()
	if inherited.Resources != nil {
		resources = inherited.Resources.Clone().(types.Dict)
	}

	fonts := types.NewDict()
	if obj, found := resources.Find("Font"); found && obj != nil {
		d, err := e.ctx.DereferenceDict(obj)
		if err != nil {
			return nil, documentIOError(op, err, fmt.Sprintf("page %d: corrupt font resources", pageIndex))
		}
		if d != nil {
			fonts = d.Clone().(types.Dict)
		}
	}

	w := &pdfcpuWriter{
		engine:    e,
		pageIndex: pageIndex,
		pageDict:  pageDict,
		resources: resources,
		fonts:     fonts,
	}
	w.content.fontName = fonts.NewIDForPrefix(fontResourcePrefix, 0)

	w.content.buf.WriteString("q\n")
	if ll := inherited.MediaBox.LL; ll.X != 0 || ll.Y != 0 {
		// Positions are relative to the visible page corner.
		fmt.Fprintf(&w.content.buf, "1 0 0 1 %s %s cm\n",
			formatNumber(decimal.NewFromFloat(ll.X)), formatNumber(decimal.NewFromFloat(ll.Y)))
	}

	return w, nil
}

// Save implements Engine.
func (e *PdfcpuEngine) Save(w io.Writer) error {
	if err := api.WriteContext(e.ctx, w); err != nil {
		return documentIOError("Save", err, "failed to write PDF")
	}
	return nil
}

func (e *PdfcpuEngine) page(op string, pageIndex int) (types.Dict, *model.InheritedPageAttrs, error) {
	if pageIndex < 0 || pageIndex >= e.ctx.PageCount {
		return nil, nil, NewCompositeError(op, ErrPageOutOfRange,
			fmt.Sprintf("page %d of %d", pageIndex, e.ctx.PageCount))
	}

	pageDict, _, inherited, err := e.ctx.PageDict(pageIndex+1, false)
	if err != nil {
		return nil, nil, documentIOError(op, err, fmt.Sprintf("page %d", pageIndex))
	}
	if pageDict == nil || inherited == nil || inherited.MediaBox == nil {
		return nil, nil, documentIOError(op, fmt.Errorf("missing page dict or media box"), fmt.Sprintf("page %d", pageIndex))
	}

	return pageDict, inherited, nil
}

// fontResource returns the shared WinAnsi font dict, creating it on first use.
func (e *PdfcpuEngine) fontResource() (types.IndirectRef, error) {
	if e.fontRef != nil {
		return *e.fontRef, nil
	}

	fontDict := types.Dict(map[string]types.Object{
		"Type":     types.Name("Font"),
		"Subtype":  types.Name("Type1"),
		"BaseFont": types.Name(e.baseFont),
		"Encoding": types.Name("WinAnsiEncoding"),
	})

	ref, err := e.ctx.IndRefForNewObject(fontDict)
	if err != nil {
		return types.IndirectRef{}, err
	}
	e.fontRef = ref
	return *ref, nil
}

// prependContents makes ref the first content stream of pageDict.
func (e *PdfcpuEngine) prependContents(pageDict types.Dict, ref types.IndirectRef) error {
	obj, found := pageDict.Find("Contents")
	if !found || obj == nil {
		pageDict.Update("Contents", ref)
		return nil
	}

	switch o := obj.(type) {
	case types.IndirectRef:
		target, err := e.ctx.Dereference(o)
		if err != nil {
			return err
		}
		if arr, ok := target.(types.Array); ok {
			pageDict.Update("Contents", append(types.Array{ref}, arr...))
			return nil
		}
		pageDict.Update("Contents", types.Array{ref, o})
	case types.Array:
		pageDict.Update("Contents", append(types.Array{ref}, o...))
	default:
		return fmt.Errorf("unexpected /Contents type %T", obj)
	}

	return nil
}

// pdfcpuWriter buffers operators for one page and installs them on Close.
type pdfcpuWriter struct {
	content contentBuffer

	engine    *PdfcpuEngine
	pageIndex int
	pageDict  types.Dict
	resources types.Dict
	fonts     types.Dict
	closed    bool
}

func (w *pdfcpuWriter) SetRenderingMode(mode RenderingMode) { w.content.SetRenderingMode(mode) }
func (w *pdfcpuWriter) BeginText()                          { w.content.BeginText() }
func (w *pdfcpuWriter) EndText()                            { w.content.EndText() }
func (w *pdfcpuWriter) SetFont(size decimal.Decimal)        { w.content.SetFont(size) }
func (w *pdfcpuWriter) MoveText(x, y decimal.Decimal)       { w.content.MoveText(x, y) }
func (w *pdfcpuWriter) ShowText(encoded []byte)             { w.content.ShowText(encoded) }

// Close prepends the buffered stream to the page. A writer that never showed
// text leaves the page untouched.
func (w *pdfcpuWriter) Close() error {
	const op = "Close"

	if w.closed {
		return nil
	}
	w.closed = true

	if w.content.shown == 0 {
		return nil
	}
	w.content.buf.WriteString("Q\n")

	ctx := w.engine.ctx
	details := fmt.Sprintf("page %d", w.pageIndex)

	fontRef, err := w.engine.fontResource()
	if err != nil {
		return documentIOError(op, err, details)
	}
	w.fonts.Update(w.content.fontName, fontRef)
	w.resources.Update("Font", w.fonts)
	w.pageDict.Update("Resources", w.resources)

	sd, err := ctx.NewStreamDictForBuf(w.content.buf.Bytes())
	if err != nil {
		return documentIOError(op, err, details)
	}
	if err := sd.Encode(); err != nil {
		return documentIOError(op, err, details)
	}

	ref, err := ctx.IndRefForNewObject(*sd)
	if err != nil {
		return documentIOError(op, err, details)
	}

	if err := w.engine.prependContents(w.pageDict, *ref); err != nil {
		return documentIOError(op, err, details)
	}

	return nil
}
