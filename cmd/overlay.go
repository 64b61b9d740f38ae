package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"searchpdf/internal/compositor"
	"searchpdf/internal/logger"
	"searchpdf/internal/searchable"
)

var overlayCmd = &cobra.Command{
	Use:   "overlay [pdf-file]",
	Short: "Overlay a saved OCR result onto a scanned PDF",
	Long: `Read a scanned PDF and a saved OCR response and write a searchable PDF.

Supported OCR formats:
  vision      Google Cloud Vision BatchAnnotateImagesResponse JSON (responses[0] is used)
  documentai  Google Document AI Document or ProcessResponse JSON

Each OCR page is matched to the PDF page with the same index. PDF pages
without OCR data are copied unchanged.

Optional environment variables:
  OCR_FONT                     Standard font used for the text layer (default: Helvetica)
  OCR_UNENCODABLE_REPLACEMENT  Replacement for characters outside WinAnsi (default: ?, empty = skip word)
  FONT_SIZE_STRATEGY           direct or iterative (default: direct)`,
	Example: `  # Write scan.searchable.pdf next to the input
  searchpdf overlay scan.pdf --ocr-json scan.json

  # Use a Document AI response and write to stdout
  searchpdf overlay scan.pdf --ocr-json scan.docai.json --format documentai -o - > out.pdf`,
	Args: cobra.ExactArgs(1),
	RunE: runOverlay,
}

func init() {
	rootCmd.AddCommand(overlayCmd)

	overlayCmd.Flags().String("ocr-json", "", "OCR result JSON file [REQUIRED]")
	overlayCmd.Flags().String("format", searchable.FormatVision, "OCR JSON format (vision, documentai)")
	overlayCmd.Flags().StringP("output", "o", "", "Output PDF path, - for stdout (default: <input>.searchable.pdf)")

	overlayCmd.MarkFlagRequired("ocr-json")
}

func runOverlay(cmd *cobra.Command, args []string) error {
	log := logger.WithComponent("overlay")

	ocrPath, _ := cmd.Flags().GetString("ocr-json")
	format, _ := cmd.Flags().GetString("format")
	outputPath, _ := cmd.Flags().GetString("output")

	pdfPath := args[0]
	if outputPath == "" {
		outputPath = defaultOutputPath(pdfPath)
	}

	if !searchable.ValidFormat(format) {
		return fmt.Errorf("invalid OCR format: %s (must be '%s' or '%s')", format, searchable.FormatVision, searchable.FormatDocumentAI)
	}

	log.Info().
		Str("file", pdfPath).
		Str("ocr_json", ocrPath).
		Str("format", format).
		Str("output", outputPath).
		Msg("Starting overlay")

	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	if _, err := validatePDFFile(pdfPath, cfg.MaxUploadBytes, log); err != nil {
		return err
	}

	ocrJSON, err := os.ReadFile(ocrPath)
	if err != nil {
		log.Error().Err(err).Str("file", ocrPath).Msg("Failed to read OCR JSON")
		return fmt.Errorf("failed to read OCR JSON: %w", err)
	}

	svc, err := newTransformService(cfg)
	if err != nil {
		return fmt.Errorf("failed to create transform service: %w", err)
	}

	pdfFile, err := os.Open(pdfPath)
	if err != nil {
		return fmt.Errorf("failed to open PDF file: %w", err)
	}
	defer func() {
		if closeErr := pdfFile.Close(); closeErr != nil {
			log.Warn().Err(closeErr).Msg("Failed to close PDF file")
		}
	}()

	ctx, cancel := createContextWithTimeout(0, log)
	defer cancel()

	result, err := svc.TransformJSON(ctx, pdfFile, ocrJSON, format)
	if err != nil {
		return handleTransformError(err, log)
	}

	if err := writeOutput(outputPath, result.PDF, cmd.OutOrStdout(), log); err != nil {
		return err
	}

	printSummary(cmd.OutOrStdout(), pdfPath, outputPath, result.Report)
	return nil
}

// defaultOutputPath places the searchable PDF next to its input.
func defaultOutputPath(pdfPath string) string {
	ext := filepath.Ext(pdfPath)
	return strings.TrimSuffix(pdfPath, ext) + ".searchable.pdf"
}

// validatePDFFile checks if the file exists, is readable, and appears to be a PDF
func validatePDFFile(pdfPath string, maxBytes int64, log zerolog.Logger) (os.FileInfo, error) {
	fileInfo, err := os.Stat(pdfPath)
	if err != nil {
		if os.IsNotExist(err) {
			log.Error().
				Str("file", pdfPath).
				Msg("PDF file not found")
			return nil, fmt.Errorf("PDF file not found: %s", pdfPath)
		}
		if os.IsPermission(err) {
			log.Error().
				Str("file", pdfPath).
				Msg("Permission denied accessing PDF file")
			return nil, fmt.Errorf("permission denied accessing PDF file: %s", pdfPath)
		}
		return nil, fmt.Errorf("error accessing PDF file: %w", err)
	}

	if !fileInfo.Mode().IsRegular() {
		log.Error().
			Str("file", pdfPath).
			Msg("Path is not a regular file")
		return nil, fmt.Errorf("path is not a regular file: %s", pdfPath)
	}

	if !strings.HasSuffix(strings.ToLower(pdfPath), ".pdf") {
		log.Warn().
			Str("file", pdfPath).
			Msg("File does not have .pdf extension")
	}

	if fileInfo.Size() == 0 {
		log.Error().
			Str("file", pdfPath).
			Msg("PDF file is empty")
		return nil, fmt.Errorf("PDF file is empty: %s", pdfPath)
	}

	if fileInfo.Size() > maxBytes {
		log.Error().
			Str("file", pdfPath).
			Int64("size", fileInfo.Size()).
			Int64("max_size", maxBytes).
			Msg("PDF file exceeds maximum size limit")
		return nil, fmt.Errorf("PDF file too large (%d bytes). Maximum size is %d bytes", fileInfo.Size(), maxBytes)
	}

	return fileInfo, nil
}

// handleTransformError provides user-friendly error messages for transform failures
func handleTransformError(err error, log zerolog.Logger) error {
	log.Error().Err(err).Msg("Transform failed")

	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return fmt.Errorf("processing timed out. Try increasing --timeout or processing a smaller file")
	case errors.Is(err, context.Canceled):
		return fmt.Errorf("processing was canceled")
	case errors.Is(err, searchable.ErrInvalidInput):
		return fmt.Errorf("the OCR result could not be read. Check the file and the --format flag: %w", err)
	case errors.Is(err, searchable.ErrDocumentTooLarge):
		return fmt.Errorf("PDF file is too large. Raise MAX_UPLOAD_BYTES or split the file")
	case errors.Is(err, searchable.ErrInvalidPDF):
		return fmt.Errorf("invalid or corrupted PDF file. Please check the file integrity: %w", err)
	default:
		return fmt.Errorf("failed to create searchable PDF: %w", err)
	}
}

// writeOutput writes data to path, or to stdout for "-".
func writeOutput(path string, data []byte, stdout io.Writer, log zerolog.Logger) error {
	if path == "-" {
		if _, err := stdout.Write(data); err != nil {
			log.Error().Err(err).Msg("Failed to write to stdout")
			return fmt.Errorf("failed to write output: %w", err)
		}
		return nil
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		log.Error().
			Err(err).
			Str("output_file", path).
			Msg("Failed to write output file")
		return fmt.Errorf("failed to write output file: %w", err)
	}

	log.Info().
		Str("output_file", path).
		Int("bytes", len(data)).
		Msg("Searchable PDF written to file")
	return nil
}

// printSummary reports the overlay outcome. Nothing is printed when the PDF
// itself went to stdout.
func printSummary(w io.Writer, input, output string, report *compositor.Report) {
	if output == "-" {
		return
	}

	fmt.Fprintf(w, "%s -> %s\n", input, output)
	fmt.Fprintf(w, "Pages: %d (%d with OCR text)\n", len(report.Pages), report.PagesOverlaid)
	fmt.Fprintf(w, "Words placed: %d\n", report.WordsPlaced)
	if report.WordsSkipped > 0 {
		fmt.Fprintf(w, "Words skipped: %d\n", report.WordsSkipped)
	}
	if len(report.IgnoredPages) > 0 {
		fmt.Fprintf(w, "OCR pages without a PDF page: %v\n", report.IgnoredPages)
	}
}
