// Package ocr turns OCR engine output into the page/word model used to build
// searchable PDFs.
//
// Two OCR backends are supported, both from Google Cloud:
//   - Cloud Vision document text detection (BatchAnnotateFiles / AnnotateImageResponse)
//   - Document AI OCR processors (Document with per-page tokens)
//
// Saved responses can be parsed from JSON (ParseVisionJSON, ParseDocumentAIJSON)
// and normalized (NormalizeVision, NormalizeDocumentAI) without network access.
// The live services (GoogleVisionOCRService, DocumentAIOCRService) call the APIs
// and return already normalized pages.
//
// Required Environment Variables for the live services:
//   - GOOGLE_APPLICATION_CREDENTIALS: Path to service account JSON file, OR
//   - GOOGLE_CREDENTIALS: Inline JSON credentials string
//   - GOOGLE_CLOUD_PROJECT, GOOGLE_CLOUD_LOCATION, DOCUMENT_AI_PROCESSOR_ID (Document AI only)
//
// Normalization contract:
//   - Vision: only responses[0] is used. The engine returns one annotation set per
//     request, additional entries are ignored on purpose.
//   - Word polygons must carry at least four normalized vertices; vertices 0..3 are
//     mapped to top-left, top-right, bottom-right, bottom-left without validation.
//   - Malformed input fails with ErrInvalidResponse, nothing is defaulted.
package ocr

import (
	"context"
	"io"
	"time"

	"google.golang.org/protobuf/proto"

	"searchpdf/pkg/models"
)

// OCRService defines the interface for OCR backends producing word geometry.
type OCRService interface {
	// Recognize runs OCR over a PDF document and returns normalized pages.
	Recognize(ctx context.Context, pdfData io.Reader) (*OCRResult, error)

	// Close releases the underlying API client.
	Close() error
}

// OCRResult contains normalized OCR output with metadata.
type OCRResult struct {
	// Pages holds one entry per recognized page, in page order.
	Pages []models.Page `json:"pages"`

	// PageCount is the number of pages that were processed.
	PageCount int `json:"page_count"`

	// WordCount is the total number of recognized words.
	WordCount int `json:"word_count"`

	// Confidence is the average page confidence (0.0 to 1.0).
	Confidence float32 `json:"confidence"`

	// LanguageCodes contains the detected languages in the document.
	LanguageCodes []string `json:"language_codes,omitempty"`

	// ProcessedAt is the timestamp when the OCR processing completed.
	ProcessedAt time.Time `json:"processed_at"`

	// ProcessingDuration is how long the OCR processing took.
	ProcessingDuration time.Duration `json:"processing_duration"`

	// Raw is the backend response the pages were normalized from. It is a
	// *visionpb.BatchAnnotateImagesResponse or a *documentaipb.Document and can be
	// saved with MarshalRaw for later offline runs.
	Raw proto.Message `json:"-"`
}
