package ocr

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"sort"
	"time"

	documentai "cloud.google.com/go/documentai/apiv1"
	"cloud.google.com/go/documentai/apiv1/documentaipb"
	"github.com/rs/zerolog"
	"google.golang.org/api/option"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"searchpdf/internal/logger"
	"searchpdf/pkg/models"
)

// DocumentAIConfig holds the processor coordinates for Document AI OCR.
type DocumentAIConfig struct {
	ProjectID        string
	Location         string // "us" or "eu"
	ProcessorID      string
	ProcessorVersion string
	Timeout          time.Duration
}

// DocumentAIOCRService implements OCRService using a Document AI OCR processor.
type DocumentAIOCRService struct {
	client *documentai.DocumentProcessorClient
	config DocumentAIConfig
	log    zerolog.Logger
}

// NewDocumentAIOCRService creates a Document AI client for config.Location.
// Credentials come from GOOGLE_CREDENTIALS or GOOGLE_APPLICATION_CREDENTIALS,
// falling back to application default credentials.
func NewDocumentAIOCRService(ctx context.Context, config DocumentAIConfig) (OCRService, error) {
	const op = "NewDocumentAIOCRService"

	if config.ProjectID == "" {
		return nil, WrapOCRError(op, ErrInvalidConfiguration, "GOOGLE_CLOUD_PROJECT is required")
	}
	if config.ProcessorID == "" {
		return nil, WrapOCRError(op, ErrInvalidConfiguration, "DOCUMENT_AI_PROCESSOR_ID is required")
	}
	if config.Location == "" {
		config.Location = "us"
	}
	if config.Timeout <= 0 {
		config.Timeout = 60 * time.Second
	}

	var clientOptions []option.ClientOption

	// Non-US processors live behind a regional endpoint
	if config.Location != "us" {
		endpoint := fmt.Sprintf("%s-documentai.googleapis.com:443", config.Location)
		clientOptions = append(clientOptions, option.WithEndpoint(endpoint))
	}

	if credJSON := os.Getenv("GOOGLE_CREDENTIALS"); credJSON != "" {
		clientOptions = append(clientOptions, option.WithCredentialsJSON([]byte(credJSON)))
	} else if credFile := os.Getenv("GOOGLE_APPLICATION_CREDENTIALS"); credFile != "" {
		clientOptions = append(clientOptions, option.WithCredentialsFile(credFile))
	}

	client, err := documentai.NewDocumentProcessorClient(ctx, clientOptions...)
	if err != nil {
		return nil, WrapOCRError(op, ErrMissingCredentials, fmt.Sprintf("failed to create Document AI client for location %s: %v", config.Location, err))
	}

	return NewDocumentAIOCRServiceWithClient(config, client), nil
}

// NewDocumentAIOCRServiceWithClient creates the service with an explicit client (for testing).
func NewDocumentAIOCRServiceWithClient(config DocumentAIConfig, client *documentai.DocumentProcessorClient) OCRService {
	return &DocumentAIOCRService{
		client: client,
		config: config,
		log:    logger.WithComponent("document-ai-ocr"),
	}
}

// Recognize sends the PDF to the OCR processor and normalizes the returned
// document tokens.
func (d *DocumentAIOCRService) Recognize(ctx context.Context, pdfData io.Reader) (*OCRResult, error) {
	const op = "Recognize"
	startTime := time.Now()

	pdfBytes, err := readPDF(op, pdfData)
	if err != nil {
		return nil, err
	}

	processCtx, cancel := context.WithTimeout(ctx, d.config.Timeout)
	defer cancel()

	req := &documentaipb.ProcessRequest{
		Name: d.ProcessorName(),
		Source: &documentaipb.ProcessRequest_RawDocument{
			RawDocument: &documentaipb.RawDocument{
				Content:  pdfBytes,
				MimeType: "application/pdf",
			},
		},
	}

	d.log.Debug().Str("processor", req.GetName()).Int("bytes", len(pdfBytes)).Msg("Calling Document AI ProcessDocument")

	resp, err := d.client.ProcessDocument(processCtx, req)
	if err != nil {
		return nil, d.handleProcessingError(op, err)
	}
	if resp.GetDocument() == nil {
		return nil, WrapOCRError(op, ErrOCRFailed, "no document in response")
	}

	pages, err := NormalizeDocumentAI(resp.GetDocument())
	if err != nil {
		return nil, WrapOCRError(op, err, "failed to normalize Document AI response")
	}
	if len(pages) == 0 {
		return nil, WrapOCRError(op, ErrEmptyDocument, "processor returned no pages")
	}

	result := &OCRResult{
		Pages:         pages,
		PageCount:     len(pages),
		WordCount:     models.WordCount(pages),
		Confidence:    documentConfidence(resp.GetDocument()),
		LanguageCodes: documentLanguages(resp.GetDocument()),
		Raw:           resp.GetDocument(),
	}
	result.ProcessedAt = time.Now()
	result.ProcessingDuration = result.ProcessedAt.Sub(startTime)

	d.log.Info().
		Int("pages", result.PageCount).
		Int("words", result.WordCount).
		Dur("duration", result.ProcessingDuration).
		Msg("Document AI OCR completed")

	return result, nil
}

// ProcessorName returns the fully qualified processor resource name.
func (d *DocumentAIOCRService) ProcessorName() string {
	if d.config.ProcessorVersion != "" {
		return fmt.Sprintf("projects/%s/locations/%s/processors/%s/processorVersions/%s",
			d.config.ProjectID, d.config.Location, d.config.ProcessorID, d.config.ProcessorVersion)
	}
	return fmt.Sprintf("projects/%s/locations/%s/processors/%s",
		d.config.ProjectID, d.config.Location, d.config.ProcessorID)
}

// handleProcessingError maps gRPC status codes onto OCR errors.
func (d *DocumentAIOCRService) handleProcessingError(op string, err error) error {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return WrapOCRError(op, err, "processing was interrupted")
	}

	switch status.Code(err) {
	case codes.PermissionDenied, codes.Unauthenticated:
		return WrapOCRError(op, ErrMissingCredentials, "insufficient permissions for Document AI")
	case codes.NotFound:
		return WrapOCRError(op, ErrInvalidConfiguration, fmt.Sprintf("processor not found: %s", d.config.ProcessorID))
	case codes.InvalidArgument:
		return WrapOCRError(op, ErrInvalidPDF, "document format not supported or corrupted")
	case codes.DeadlineExceeded:
		return WrapOCRError(op, context.DeadlineExceeded, "processing timeout")
	default:
		return WrapOCRError(op, ErrOCRFailed, fmt.Sprintf("Document AI error: %v", err))
	}
}

func documentConfidence(doc *documentaipb.Document) float32 {
	var sum float32
	var count int
	for _, page := range doc.GetPages() {
		if c := page.GetLayout().GetConfidence(); c > 0 {
			sum += c
			count++
		}
	}
	if count == 0 {
		return 0
	}
	return sum / float32(count)
}

func documentLanguages(doc *documentaipb.Document) []string {
	languageSet := make(map[string]bool)
	for _, page := range doc.GetPages() {
		for _, lang := range page.GetDetectedLanguages() {
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

// Close closes the underlying Document AI client.
func (d *DocumentAIOCRService) Close() error {
	if d.client != nil {
		return d.client.Close()
	}
	return nil
}
