// Package searchable turns a scanned PDF plus word-level OCR into a PDF with an
// invisible, selectable text layer.
//
// The Service ties the pieces together:
//   - OCR JSON is parsed and normalized by package ocr
//   - font sizes come from a fontsize.Solver over the configured core font
//   - the overlay is written by a compositor.Compositor on a pdfcpu engine
//
// Input documents are fully read into memory before processing. Pages without
// OCR data are copied unchanged; words that cannot be placed are skipped and
// counted in the Report.
package searchable

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/rs/zerolog"

	"searchpdf/internal/compositor"
	"searchpdf/internal/fontsize"
	"searchpdf/internal/logger"
	"searchpdf/internal/ocr"
	"searchpdf/pkg/models"
)

// DefaultMaxBytes caps the size of an input PDF.
const DefaultMaxBytes int64 = 20 * 1024 * 1024

// OCR JSON formats accepted by TransformJSON.
const (
	FormatVision     = "vision"
	FormatDocumentAI = "documentai"
)

// Options configures a Service.
type Options struct {
	// Font is the core font used for sizing and rendering. Defaults to
	// Helvetica with '?' replacing unencodable characters.
	Font *fontsize.CoreFont

	// Solver defaults to fontsize.DefaultConfig().
	Solver *fontsize.Config

	// MaxBytes defaults to DefaultMaxBytes.
	MaxBytes int64

	// Logger defaults to the "searchable" component logger.
	Logger *zerolog.Logger
}

// Service transforms PDFs into searchable PDFs.
type Service struct {
	compositor *compositor.Compositor
	font       *fontsize.CoreFont
	maxBytes   int64
	log        zerolog.Logger
}

// Result is the output of a successful transform.
type Result struct {
	PDF      []byte
	Report   *compositor.Report
	Duration time.Duration
}

// NewService creates a Service from opts.
func NewService(opts Options) (*Service, error) {
	const op = "NewService"

	log := logger.WithComponent("searchable")
	if opts.Logger != nil {
		log = *opts.Logger
	}

	font := opts.Font
	if font == nil {
		var err error
		font, err = fontsize.NewCoreFont(fontsize.DefaultFont, '?')
		if err != nil {
			return nil, WrapTransformError(op, err, "default font")
		}
	}

	cfg := fontsize.DefaultConfig()
	if opts.Solver != nil {
		cfg = *opts.Solver
	}
	solver, err := fontsize.New(cfg, font)
	if err != nil {
		return nil, WrapTransformError(op, err, "font size solver")
	}

	maxBytes := opts.MaxBytes
	if maxBytes <= 0 {
		maxBytes = DefaultMaxBytes
	}

	log.Debug().
		Str("font", font.Name).
		Str("strategy", cfg.Strategy).
		Int64("max_bytes", maxBytes).
		Msg("Searchable PDF service initialized")

	return &Service{
		compositor: &compositor.Compositor{
			Solver: solver,
			Font:   font,
			Logger: log,
		},
		font:     font,
		maxBytes: maxBytes,
		log:      log,
	}, nil
}

// Transform overlays pages onto the PDF read from pdf.
func (s *Service) Transform(ctx context.Context, pdf io.Reader, pages []models.Page) (*Result, error) {
	const op = "Transform"
	start := time.Now()

	data, err := s.readPDF(op, pdf)
	if err != nil {
		return nil, err
	}

	engine, err := compositor.Open(bytes.NewReader(data), s.font.Name)
	if err != nil {
		return nil, classify(op, ErrInvalidPDF, err, "failed to open PDF")
	}

	s.log.Debug().
		Int("pdf_pages", engine.PageCount()).
		Int("ocr_pages", len(pages)).
		Int("ocr_words", models.WordCount(pages)).
		Msg("Compositing OCR overlay")

	report, err := s.compositor.Composite(ctx, engine, pages)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil && errors.Is(err, ctxErr) {
			return nil, WrapTransformError(op, err, "canceled")
		}
		return nil, classify(op, ErrTransformFailed, err, "composite")
	}

	var out bytes.Buffer
	if err := engine.Save(&out); err != nil {
		return nil, classify(op, ErrTransformFailed, err, "save")
	}

	duration := time.Since(start)
	s.log.Info().
		Int("input_bytes", len(data)).
		Int("output_bytes", out.Len()).
		Int("words_placed", report.WordsPlaced).
		Int("words_skipped", report.WordsSkipped).
		Dur("duration", duration).
		Msg("Searchable PDF created")

	return &Result{PDF: out.Bytes(), Report: report, Duration: duration}, nil
}

// TransformVisionJSON parses a Cloud Vision BatchAnnotateImagesResponse and
// transforms pdf with it.
func (s *Service) TransformVisionJSON(ctx context.Context, pdf io.Reader, ocrJSON []byte) (*Result, error) {
	return s.TransformJSON(ctx, pdf, ocrJSON, FormatVision)
}

// TransformDocumentAIJSON parses a Document AI Document (or ProcessResponse)
// and transforms pdf with it.
func (s *Service) TransformDocumentAIJSON(ctx context.Context, pdf io.Reader, ocrJSON []byte) (*Result, error) {
	return s.TransformJSON(ctx, pdf, ocrJSON, FormatDocumentAI)
}

// TransformJSON parses ocrJSON in the given format and transforms pdf with it.
// The OCR input is validated before the PDF is read.
func (s *Service) TransformJSON(ctx context.Context, pdf io.Reader, ocrJSON []byte, format string) (*Result, error) {
	const op = "TransformJSON"

	pages, err := ParseOCR(ocrJSON, format)
	if err != nil {
		return nil, WrapTransformError(op, err, format)
	}

	return s.Transform(ctx, pdf, pages)
}

// ParseOCR parses and normalizes ocrJSON. Every failure matches ErrInvalidInput.
func ParseOCR(ocrJSON []byte, format string) ([]models.Page, error) {
	const op = "ParseOCR"

	var (
		pages []models.Page
		err   error
	)

	switch format {
	case FormatVision, "":
		resp, parseErr := ocr.ParseVisionJSON(ocrJSON)
		if parseErr != nil {
			return nil, classify(op, ErrInvalidInput, parseErr, "vision JSON")
		}
		pages, err = ocr.NormalizeVision(resp)
	case FormatDocumentAI:
		doc, parseErr := ocr.ParseDocumentAIJSON(ocrJSON)
		if parseErr != nil {
			return nil, classify(op, ErrInvalidInput, parseErr, "document AI JSON")
		}
		pages, err = ocr.NormalizeDocumentAI(doc)
	default:
		return nil, NewTransformError(op, ErrInvalidInput, fmt.Sprintf("unknown OCR format %q", format))
	}

	if err != nil {
		return nil, classify(op, ErrInvalidInput, err, "normalize "+format)
	}
	return pages, nil
}

// ValidFormat reports whether format names a supported OCR JSON format.
func ValidFormat(format string) bool {
	return format == FormatVision || format == FormatDocumentAI
}

func (s *Service) readPDF(op string, pdf io.Reader) ([]byte, error) {
	if pdf == nil {
		return nil, NewTransformError(op, ErrInvalidPDF, "no PDF data")
	}

	data, err := io.ReadAll(io.LimitReader(pdf, s.maxBytes+1))
	if err != nil {
		return nil, classify(op, ErrInvalidPDF, err, "failed to read PDF")
	}

	if int64(len(data)) > s.maxBytes {
		return nil, NewTransformError(op, ErrDocumentTooLarge, fmt.Sprintf("limit is %d bytes", s.maxBytes))
	}

	if !bytes.HasPrefix(data, []byte("%PDF")) {
		return nil, NewTransformError(op, ErrInvalidPDF, "missing %PDF header")
	}

	return data, nil
}
