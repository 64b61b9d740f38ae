package cmd

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"searchpdf/internal/config"
	"searchpdf/internal/logger"
	"searchpdf/internal/ocr"
)

// OCR engines
const (
	engineVision     = "vision"
	engineDocumentAI = "documentai"
)

var ocrCmd = &cobra.Command{
	Use:   "ocr [pdf-file]",
	Short: "Run Google Cloud OCR on a PDF and write a searchable PDF",
	Long: `Send a scanned PDF to Google Cloud Vision or Document AI and overlay the
recognized words as an invisible text layer.

Cloud Vision synchronous processing supports up to 5 pages and 20MB.
The raw OCR response can be saved with --save-json and reused later with
the overlay command.

Required environment variables:
  GOOGLE_APPLICATION_CREDENTIALS - Path to service account JSON file, OR
  GOOGLE_CREDENTIALS - Inline JSON credentials string
  GOOGLE_CLOUD_PROJECT - Your Google Cloud project ID

Document AI only:
  GOOGLE_CLOUD_LOCATION - Processing location (us, eu)
  DOCUMENT_AI_PROCESSOR_ID - Your Document AI OCR processor ID`,
	Example: `  # OCR with Cloud Vision, write scan.searchable.pdf
  searchpdf ocr scan.pdf

  # Use Document AI and keep the raw response
  searchpdf ocr scan.pdf --engine documentai --save-json scan.docai.json

  # Process with custom timeout
  searchpdf ocr large-document.pdf --timeout 600 -o out.pdf`,
	Args: cobra.ExactArgs(1),
	RunE: runOCR,
}

func init() {
	rootCmd.AddCommand(ocrCmd)

	ocrCmd.Flags().StringP("output", "o", "", "Output PDF path, - for stdout (default: <input>.searchable.pdf)")
	ocrCmd.Flags().String("engine", engineVision, "OCR engine (vision, documentai)")
	ocrCmd.Flags().String("save-json", "", "Also write the raw OCR response to this file")
	ocrCmd.Flags().Int("timeout", 300, "Processing timeout in seconds")
}

func runOCR(cmd *cobra.Command, args []string) error {
	log := logger.WithComponent("ocr")

	outputPath, _ := cmd.Flags().GetString("output")
	engine, _ := cmd.Flags().GetString("engine")
	saveJSON, _ := cmd.Flags().GetString("save-json")
	timeoutSecs, _ := cmd.Flags().GetInt("timeout")

	pdfPath := args[0]
	if outputPath == "" {
		outputPath = defaultOutputPath(pdfPath)
	}

	if engine != engineVision && engine != engineDocumentAI {
		return fmt.Errorf("invalid OCR engine: %s (must be '%s' or '%s')", engine, engineVision, engineDocumentAI)
	}

	log.Info().
		Str("file", pdfPath).
		Str("output", outputPath).
		Str("engine", engine).
		Int("timeout", timeoutSecs).
		Msg("Starting OCR processing")

	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	fileInfo, err := validatePDFFile(pdfPath, ocr.MaxFileSizeBytes, log)
	if err != nil {
		return err
	}

	pdfData, err := os.ReadFile(pdfPath)
	if err != nil {
		log.Error().
			Err(err).
			Str("file", pdfPath).
			Msg("Failed to read PDF file")
		return fmt.Errorf("failed to read PDF file: %w", err)
	}

	ctx, cancel := createContextWithTimeout(timeoutSecs, log)
	defer cancel()

	ocrService, err := createOCRService(ctx, engine, cfg, log)
	if err != nil {
		return err
	}
	defer func() {
		if closeErr := ocrService.Close(); closeErr != nil {
			log.Warn().Err(closeErr).Msg("Failed to close OCR client")
		}
	}()

	log.Info().
		Str("file", pdfPath).
		Int64("size", fileInfo.Size()).
		Msg("Processing PDF")

	result, err := ocrService.Recognize(ctx, bytes.NewReader(pdfData))
	if err != nil {
		return handleOCRError(err, log)
	}

	log.Info().
		Int("page_count", result.PageCount).
		Int("word_count", result.WordCount).
		Float32("confidence", result.Confidence).
		Strs("languages", result.LanguageCodes).
		Dur("duration", result.ProcessingDuration).
		Msg("OCR processing completed successfully")

	if saveJSON != "" {
		if err := saveRawResponse(saveJSON, result, log); err != nil {
			return err
		}
	}

	svc, err := newTransformService(cfg)
	if err != nil {
		return fmt.Errorf("failed to create transform service: %w", err)
	}

	transformed, err := svc.Transform(ctx, bytes.NewReader(pdfData), result.Pages)
	if err != nil {
		return handleTransformError(err, log)
	}

	if err := writeOutput(outputPath, transformed.PDF, cmd.OutOrStdout(), log); err != nil {
		return err
	}

	printSummary(cmd.OutOrStdout(), pdfPath, outputPath, transformed.Report)
	return nil
}

// saveRawResponse writes the engine's raw response as JSON, readable by overlay.
func saveRawResponse(path string, result *ocr.OCRResult, log zerolog.Logger) error {
	data, err := ocr.MarshalRaw(result.Raw)
	if err != nil {
		log.Error().Err(err).Msg("Failed to marshal raw OCR response")
		return fmt.Errorf("failed to marshal OCR response: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		log.Error().Err(err).Str("output_file", path).Msg("Failed to write OCR response")
		return fmt.Errorf("failed to write OCR response: %w", err)
	}

	log.Info().Str("output_file", path).Int("bytes", len(data)).Msg("Raw OCR response saved")
	return nil
}

// createContextWithTimeout creates a context with timeout and signal handling.
// A non-positive timeout only cancels on signals.
func createContextWithTimeout(timeoutSecs int, log zerolog.Logger) (context.Context, context.CancelFunc) {
	var (
		ctx    context.Context
		cancel context.CancelFunc
	)
	if timeoutSecs > 0 {
		ctx, cancel = context.WithTimeout(context.Background(), time.Duration(timeoutSecs)*time.Second)
	} else {
		ctx, cancel = context.WithCancel(context.Background())
	}

	// Handle interrupt signals for graceful shutdown
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	go func() {
		defer signal.Stop(sigChan)
		select {
		case sig := <-sigChan:
			log.Info().
				Str("signal", sig.String()).
				Msg("Received interrupt signal, canceling processing")
			cancel()
		case <-ctx.Done():
			// Context completed normally
		}
	}()

	return ctx, cancel
}

// createOCRService creates and configures the OCR backend
func createOCRService(ctx context.Context, engine string, cfg *config.Config, log zerolog.Logger) (ocr.OCRService, error) {
	hasCredentials := os.Getenv("GOOGLE_APPLICATION_CREDENTIALS") != "" || os.Getenv("GOOGLE_CREDENTIALS") != ""
	if !hasCredentials {
		log.Warn().Msg("No explicit Google Cloud credentials, falling back to application default credentials")
	}

	var (
		ocrService ocr.OCRService
		err        error
	)
	switch engine {
	case engineDocumentAI:
		ocrService, err = ocr.NewDocumentAIOCRService(ctx, ocr.DocumentAIConfig{
			ProjectID:        cfg.GoogleCloudProject,
			Location:         cfg.GoogleCloudLocation,
			ProcessorID:      cfg.DocumentAIProcessorID,
			ProcessorVersion: cfg.DocumentAIProcessorVersion,
		})
	default:
		ocrService, err = ocr.NewGoogleVisionOCRService(ctx)
	}

	if err != nil {
		switch {
		case errors.Is(err, ocr.ErrMissingCredentials):
			log.Error().
				Err(err).
				Msg("Google Cloud credentials validation failed")
			return nil, fmt.Errorf("Google Cloud credentials validation failed. Please verify:\n\n" +
				"1. Credentials file exists and is readable\n" +
				"2. JSON format is valid\n" +
				"3. Service account has proper permissions\n\n" +
				"Original error: %w", err)
		case errors.Is(err, ocr.ErrInvalidConfiguration):
			log.Error().Err(err).Msg("OCR engine configuration incomplete")
			return nil, fmt.Errorf("OCR engine configuration incomplete: %w", err)
		}
		log.Error().
			Err(err).
			Msg("Failed to create OCR service")
		return nil, fmt.Errorf("failed to create OCR service: %w", err)
	}

	log.Debug().Str("engine", engine).Msg("OCR service created successfully")
	return ocrService, nil
}

// handleOCRError provides user-friendly error messages for OCR failures
func handleOCRError(err error, log zerolog.Logger) error {
	log.Error().Err(err).Msg("OCR processing failed")

	errStr := err.Error()

	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return fmt.Errorf("OCR processing timed out. Try increasing --timeout or processing a smaller file")
	case errors.Is(err, context.Canceled):
		return fmt.Errorf("OCR processing was canceled")
	case errors.Is(err, ocr.ErrPDFTooLarge):
		return fmt.Errorf("PDF file is too large (maximum 20MB). Try compressing or splitting the file")
	case errors.Is(err, ocr.ErrTooManyPages):
		return fmt.Errorf("PDF has too many pages (maximum %d pages). Try splitting into smaller files", ocr.MaxPagesSync)
	case errors.Is(err, ocr.ErrInvalidPDF):
		return fmt.Errorf("invalid or corrupted PDF file. Please check the file integrity")
	case errors.Is(err, ocr.ErrEmptyDocument):
		return fmt.Errorf("no readable text found in the document")
	case errors.Is(err, ocr.ErrInvalidResponse):
		return fmt.Errorf("the OCR engine returned an unusable response: %w", err)
	case strings.Contains(errStr, "Unauthenticated") ||
		strings.Contains(errStr, "invalid_grant") ||
		strings.Contains(errStr, "auth:") ||
		strings.Contains(errStr, "transport: per-RPC creds failed"):
		return fmt.Errorf("Google Cloud authentication failed. Set GOOGLE_APPLICATION_CREDENTIALS or GOOGLE_CREDENTIALS, "+
			"or run 'gcloud auth application-default login'. Original error: %v", err)
	case strings.Contains(errStr, "PERMISSION_DENIED") ||
		strings.Contains(errStr, "permission"):
		return fmt.Errorf("permission denied. Please ensure your service account may call the selected OCR API")
	case strings.Contains(errStr, "QUOTA_EXCEEDED") ||
		strings.Contains(errStr, "quota"):
		return fmt.Errorf("Google Cloud API quota exceeded. Check your project quotas in the Google Cloud Console")
	case errors.Is(err, ocr.ErrOCRFailed):
		return fmt.Errorf("OCR processing failed. This may be due to network issues, API quota limits, or service unavailability: %w", err)
	default:
		return fmt.Errorf("OCR processing failed: %w", err)
	}
}
