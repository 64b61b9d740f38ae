package ocr

import (
	"context"
	"fmt"
	"io"
	"os"
	"sort"
	"time"

	vision "cloud.google.com/go/vision/v2/apiv1"
	"cloud.google.com/go/vision/v2/apiv1/visionpb"
	"github.com/rs/zerolog"
	"google.golang.org/api/option"

	"searchpdf/internal/logger"
	"searchpdf/pkg/models"
)

const (
	// MaxFileSizeBytes is the maximum file size for synchronous processing (20MB)
	MaxFileSizeBytes = 20 * 1024 * 1024

	// MaxPagesSync is the maximum number of pages for synchronous processing
	MaxPagesSync = 5
)

// GoogleVisionOCRService implements OCRService using Google Cloud Vision API.
type GoogleVisionOCRService struct {
	client *vision.ImageAnnotatorClient
	log    zerolog.Logger
}

// NewGoogleVisionOCRService creates a new OCR service with credentials from environment.
// It expects either GOOGLE_APPLICATION_CREDENTIALS path or GOOGLE_CREDENTIALS JSON in env.
func NewGoogleVisionOCRService(ctx context.Context) (OCRService, error) {
	const op = "NewGoogleVisionOCRService"

	var client *vision.ImageAnnotatorClient
	var err error

	// Check for inline credentials first
	if credJSON := os.Getenv("GOOGLE_CREDENTIALS"); credJSON != "" {
		client, err = vision.NewImageAnnotatorClient(ctx, option.WithCredentialsJSON([]byte(credJSON)))
		if err != nil {
			return nil, WrapOCRError(op, err, "failed to create client with GOOGLE_CREDENTIALS")
		}
	} else if credFile := os.Getenv("GOOGLE_APPLICATION_CREDENTIALS"); credFile != "" {
		client, err = vision.NewImageAnnotatorClient(ctx, option.WithCredentialsFile(credFile))
		if err != nil {
			return nil, WrapOCRError(op, err, "failed to create client with GOOGLE_APPLICATION_CREDENTIALS")
		}
	} else {
		// Try default credentials as fallback
		client, err = vision.NewImageAnnotatorClient(ctx)
		if err != nil {
			return nil, WrapOCRError(op, ErrMissingCredentials, "no credentials found in environment")
		}
	}

	return NewGoogleVisionOCRServiceWithClient(client), nil
}

// NewGoogleVisionOCRServiceWithClient creates a new OCR service with an explicit client (for testing).
func NewGoogleVisionOCRServiceWithClient(client *vision.ImageAnnotatorClient) OCRService {
	return &GoogleVisionOCRService{
		client: client,
		log:    logger.WithComponent("vision-ocr"),
	}
}

// Recognize runs DOCUMENT_TEXT_DETECTION over an inline PDF and returns its
// pages normalized.
func (g *GoogleVisionOCRService) Recognize(ctx context.Context, pdfData io.Reader) (*OCRResult, error) {
	const op = "Recognize"
	startTime := time.Now()

	pdfBytes, err := readPDF(op, pdfData)
	if err != nil {
		return nil, err
	}

	req := &visionpb.BatchAnnotateFilesRequest{
		Requests: []*visionpb.AnnotateFileRequest{
			{
				InputConfig: &visionpb.InputConfig{
					Content:  pdfBytes,
					MimeType: "application/pdf",
				},
				Features: []*visionpb.Feature{
					{
						Type: visionpb.Feature_DOCUMENT_TEXT_DETECTION,
					},
				},
				// Without explicit pages Vision annotates the first MaxPagesSync
				// pages only; checkPageCount rejects longer documents.
				Pages: nil,
			},
		},
	}

	g.log.Debug().Int("bytes", len(pdfBytes)).Msg("Calling Vision BatchAnnotateFiles")

	resp, err := g.client.BatchAnnotateFiles(ctx, req)
	if err != nil {
		return nil, WrapOCRError(op, ErrOCRFailed, fmt.Sprintf("Vision API call failed: %v", err))
	}

	if len(resp.GetResponses()) == 0 {
		return nil, WrapOCRError(op, ErrOCRFailed, "no response from Vision API")
	}

	fileResp := resp.GetResponses()[0]
	if err := checkPageCount(fileResp); err != nil {
		return nil, WrapOCRError(op, err, "")
	}

	merged, err := MergeFileResponse(fileResp)
	if err != nil {
		return nil, WrapOCRError(op, err, "failed to merge page responses")
	}

	pages, err := NormalizeVision(merged)
	if err != nil {
		return nil, WrapOCRError(op, err, "failed to normalize Vision response")
	}

	result := &OCRResult{
		Pages:         pages,
		PageCount:     len(pages),
		WordCount:     models.WordCount(pages),
		Confidence:    visionConfidence(merged),
		LanguageCodes: visionLanguages(merged),
		Raw:           merged,
	}
	result.ProcessedAt = time.Now()
	result.ProcessingDuration = result.ProcessedAt.Sub(startTime)

	g.log.Info().
		Int("pages", result.PageCount).
		Int("words", result.WordCount).
		Dur("duration", result.ProcessingDuration).
		Msg("Vision OCR completed")

	return result, nil
}

// checkPageCount fails when the document has more pages than one synchronous
// call annotates. TotalPages counts the whole file, not just the annotated part.
func checkPageCount(fileResp *visionpb.AnnotateFileResponse) error {
	total := int(fileResp.GetTotalPages())
	if n := len(fileResp.GetResponses()); n > total {
		total = n
	}
	if total > MaxPagesSync {
		return NewOCRError("checkPageCount", ErrTooManyPages,
			fmt.Sprintf("document has %d pages, only %d were annotated", total, len(fileResp.GetResponses())))
	}
	return nil
}

// visionConfidence averages the confidence of all non-empty pages.
func visionConfidence(resp *visionpb.BatchAnnotateImagesResponse) float32 {
	var sum float32
	var count int
	for _, page := range resp.GetResponses()[0].GetFullTextAnnotation().GetPages() {
		if page.GetConfidence() > 0 {
			sum += page.GetConfidence()
			count++
		}
	}
	if count == 0 {
		return 0
	}
	return sum / float32(count)
}

// visionLanguages collects the page-level detected languages in sorted order.
func visionLanguages(resp *visionpb.BatchAnnotateImagesResponse) []string {
	languageSet := make(map[string]bool)
	for _, page := range resp.GetResponses()[0].GetFullTextAnnotation().GetPages() {
		for _, lang := range page.GetProperty().GetDetectedLanguages() {
			if lang.GetLanguageCode() != "" {
				languageSet[lang.GetLanguageCode()] = true
			}
		}
	}

	languages := make([]string, 0, len(languageSet))
	for lang := range languageSet {
		languages = append(languages, lang)
	}
	sort.Strings(languages)
	return languages
}

// readPDF materializes the document and checks the size limit and header.
func readPDF(op string, pdfData io.Reader) ([]byte, error) {
	pdfBytes, err := io.ReadAll(io.LimitReader(pdfData, MaxFileSizeBytes+1))
	if err != nil {
		return nil, WrapOCRError(op, err, "failed to read PDF data")
	}

	if len(pdfBytes) > MaxFileSizeBytes {
		return nil, WrapOCRError(op, ErrPDFTooLarge, fmt.Sprintf("file size exceeds %d bytes", MaxFileSizeBytes))
	}

	if len(pdfBytes) < 4 || string(pdfBytes[:4]) != "%PDF" {
		return nil, WrapOCRError(op, ErrInvalidPDF, "missing PDF header")
	}

	return pdfBytes, nil
}

// Close closes the underlying Vision client.
func (g *GoogleVisionOCRService) Close() error {
	if g.client != nil {
		return g.client.Close()
	}
	return nil
}
