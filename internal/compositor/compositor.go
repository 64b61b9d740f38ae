package compositor

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog"

	"searchpdf/internal/fontsize"
	"searchpdf/pkg/models"
)

// Encoder converts word text into the byte string shown with the overlay font.
type Encoder interface {
	Encode(text string) (encoded []byte, substituted int, err error)
}

// Compositor places each OCR word as invisible text over its bounding box.
type Compositor struct {
	Solver fontsize.Solver
	Font   Encoder
	Logger zerolog.Logger
}

// PageReport summarizes the overlay of one physical page.
type PageReport struct {
	Index int `json:"index"`

	// Skipped is set when no OCR page matched this page index.
	Skipped bool `json:"skipped"`

	WordsPlaced      int `json:"words_placed"`
	EmptyWords       int `json:"empty_words"`
	UnsolvedWords    int `json:"unsolved_words"`
	UnencodableWords int `json:"unencodable_words"`
	SubstitutedRunes int `json:"substituted_runes"`
}

// WordsSkipped counts all words of the page that were not placed.
func (p PageReport) WordsSkipped() int {
	return p.EmptyWords + p.UnsolvedWords + p.UnencodableWords
}

// Report summarizes a whole composite run.
type Report struct {
	Pages         []PageReport `json:"pages"`
	PagesOverlaid int          `json:"pages_overlaid"`
	WordsPlaced   int          `json:"words_placed"`
	WordsSkipped  int          `json:"words_skipped"`

	// IgnoredPages lists OCR page indices that have no physical page.
	IgnoredPages []int `json:"ignored_pages,omitempty"`
}

// Composite overlays pages onto the document behind engine. OCR pages are
// matched to physical pages by Page.Index; physical pages without OCR are
// passed through unmodified. Per-word problems skip the word, document I/O
// errors abort the whole run.
func (c *Compositor) Composite(ctx context.Context, engine Engine, pages []models.Page) (*Report, error) {
	const op = "Composite"

	pageCount := engine.PageCount()
	report := &Report{Pages: make([]PageReport, 0, pageCount)}

	byIndex := make(map[int]models.Page, len(pages))
	for _, page := range pages {
		if page.Index < 0 || page.Index >= pageCount {
			report.IgnoredPages = append(report.IgnoredPages, page.Index)
			c.Logger.Warn().
				Int("ocr_page", page.Index).
				Int("page_count", pageCount).
				Msg("OCR page has no matching PDF page, ignoring")
			continue
		}
		if _, dup := byIndex[page.Index]; dup {
			c.Logger.Warn().Int("ocr_page", page.Index).Msg("Duplicate OCR page, keeping the last one")
		}
		byIndex[page.Index] = page
	}

	for pageIndex := 0; pageIndex < pageCount; pageIndex++ {
		if err := ctx.Err(); err != nil {
			return nil, WrapCompositeError(op, err, fmt.Sprintf("canceled before page %d", pageIndex))
		}

		page, ok := byIndex[pageIndex]
		if !ok {
			c.Logger.Debug().Int("page", pageIndex).Msg("No OCR data for page, passing through")
			report.Pages = append(report.Pages, PageReport{Index: pageIndex, Skipped: true})
			continue
		}

		pageReport, err := c.compositePage(engine, page)
		if err != nil {
			return nil, err
		}

		report.Pages = append(report.Pages, pageReport)
		report.PagesOverlaid++
		report.WordsPlaced += pageReport.WordsPlaced
		report.WordsSkipped += pageReport.WordsSkipped()
	}

	c.Logger.Info().
		Int("pages", pageCount).
		Int("pages_overlaid", report.PagesOverlaid).
		Int("words_placed", report.WordsPlaced).
		Int("words_skipped", report.WordsSkipped).
		Msg("Overlay composited")

	return report, nil
}

func (c *Compositor) compositePage(engine Engine, page models.Page) (report PageReport, err error) {
	const op = "compositePage"
	report.Index = page.Index
	details := fmt.Sprintf("page %d", page.Index)

	pageWidth, pageHeight, err := engine.MediaBox(page.Index)
	if err != nil {
		return report, WrapCompositeError(op, err, details)
	}

	writer, err := engine.OpenPrepend(page.Index)
	if err != nil {
		return report, WrapCompositeError(op, err, details)
	}
	defer func() {
		if closeErr := writer.Close(); closeErr != nil && err == nil {
			err = WrapCompositeError(op, closeErr, details)
		}
	}()

	writer.SetRenderingMode(RenderInvisible)

	for wordIndex, word := range page.Words {
		if word.Text == "" {
			report.EmptyWords++
			continue
		}

		log := c.Logger.With().Int("page", page.Index).Int("word", wordIndex).Str("text", word.Text).Logger()

		// Encode before emitting anything so a bad word leaves no partial text object.
		encoded, substituted, err := c.Font.Encode(word.Text)
		if err != nil {
			report.UnencodableWords++
			log.Warn().Err(err).Msg("Skipping word that cannot be encoded")
			continue
		}

		size, err := c.Solver.Solve(word.Text, word.BoundingBox.Width(pageWidth))
		if err != nil {
			report.UnsolvedWords++
			event := log.Warn()
			if errors.Is(err, fontsize.ErrSizeUnderflow) {
				event = log.Debug()
			}
			event.Err(err).Msg("Skipping word without a usable font size")
			continue
		}

		bottomLeft := word.BoundingBox.BottomLeft
		x := bottomLeft.X.Mul(pageWidth)
		y := pageHeight.Sub(bottomLeft.Y.Mul(pageHeight))

		writer.BeginText()
		writer.SetFont(size)
		writer.MoveText(x, y)
		writer.ShowText(encoded)
		writer.EndText()

		report.WordsPlaced++
		report.SubstitutedRunes += substituted
	}

	return report, nil
}
