package cmd

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"searchpdf/internal/logger"
	"searchpdf/internal/report"
	"searchpdf/internal/searchable"
)

const searchableSuffix = ".searchable.pdf"

var batchCmd = &cobra.Command{
	Use:   "batch [folder-path]",
	Short: "Make every PDF in a folder searchable using saved OCR results",
	Long: `Process all PDF files in a folder. Every X.pdf needs a sibling X.json holding
its OCR result; the searchable PDF is written as X.searchable.pdf.

Files are processed by a pool of parallel workers. When GOOGLE_SHEET_URL is
set, one row per file is appended to the "OCR Overlay" sheet (or
GOOGLE_SHEET_WORKSHEET).

Optional environment variables:
  BATCH_WORKERS - Number of parallel workers (default: 4)
  GOOGLE_SHEET_URL - Google Sheets URL to write results
  GOOGLE_APPLICATION_CREDENTIALS / GOOGLE_CREDENTIALS - Sheets credentials`,
	Example: `  # Overlay all Vision results in ./scans
  searchpdf batch ./scans

  # Document AI results, without writing any file or sheet
  searchpdf batch ./scans --format documentai --dry-run`,
	Args: cobra.ExactArgs(1),
	RunE: runBatch,
}

// batchJob is one PDF of the batch and its OCR result.
type batchJob struct {
	PDFPath string
	OCRPath string
	Index   int
}

// batchResult is the outcome of one job.
type batchResult struct {
	report.FileResult
	Index int
}

func init() {
	rootCmd.AddCommand(batchCmd)

	batchCmd.Flags().String("format", searchable.FormatVision, "OCR JSON format (vision, documentai)")
	batchCmd.Flags().Bool("dry-run", false, "Process files but don't write PDFs or the Google Sheet")
	batchCmd.Flags().Int("workers", 0, "Number of parallel workers (default: BATCH_WORKERS)")
}

func runBatch(cmd *cobra.Command, args []string) error {
	log := logger.WithComponent("batch")

	folderPath := args[0]
	format, _ := cmd.Flags().GetString("format")
	dryRun, _ := cmd.Flags().GetBool("dry-run")
	workers, _ := cmd.Flags().GetInt("workers")

	if !searchable.ValidFormat(format) {
		return fmt.Errorf("invalid OCR format: %s (must be '%s' or '%s')", format, searchable.FormatVision, searchable.FormatDocumentAI)
	}

	folderInfo, err := os.Stat(folderPath)
	if err != nil {
		return fmt.Errorf("folder not found: %s", folderPath)
	}
	if !folderInfo.IsDir() {
		return fmt.Errorf("path is not a directory: %s", folderPath)
	}

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if workers <= 0 {
		workers = cfg.BatchWorkers
	}

	log.Info().
		Str("folder", folderPath).
		Str("format", format).
		Bool("dry_run", dryRun).
		Int("workers", workers).
		Msg("Starting batch processing")

	jobs, err := findBatchJobs(folderPath)
	if err != nil {
		return fmt.Errorf("failed to find PDF files: %w", err)
	}
	if len(jobs) == 0 {
		fmt.Println("No PDF files found in folder.")
		return nil
	}

	svc, err := newTransformService(cfg)
	if err != nil {
		return fmt.Errorf("failed to create transform service: %w", err)
	}

	ctx, cancel := createContextWithTimeout(int((30 * time.Minute).Seconds()), log)
	defer cancel()

	fmt.Printf("Processing %d PDFs with %d workers...\n\n", len(jobs), workers)

	results := processBatch(ctx, svc, jobs, format, workers, dryRun, os.Stdout, log)

	successCount, failedCount := 0, 0
	for _, result := range results {
		if result.Status == report.StatusFailed {
			failedCount++
		} else {
			successCount++
		}
	}

	fmt.Println()
	fmt.Println(strings.Repeat("=", 50))
	fmt.Printf("Succeeded: %d\n", successCount)
	if failedCount > 0 {
		fmt.Printf("Failed: %d\n", failedCount)
	}

	if !dryRun && cfg.GoogleSheetURL != "" {
		fmt.Println("Writing results to Google Sheet...")

		reporter, err := report.NewSheetsReporter(ctx, cfg.GoogleSheetURL)
		if err != nil {
			return fmt.Errorf("failed to create Google Sheets reporter: %w", err)
		}

		fileResults := make([]report.FileResult, len(results))
		for i, result := range results {
			fileResults[i] = result.FileResult
		}

		if err := reporter.WriteBatchResults(ctx, fileResults, cfg.GoogleSheetWorksheet); err != nil {
			return fmt.Errorf("failed to write to Google Sheet: %w", err)
		}

		fmt.Printf("Sheet: %s\n", cfg.GoogleSheetWorksheet)
		fmt.Printf("Rows added: %d\n", len(fileResults))
	}

	log.Info().
		Int("total", len(jobs)).
		Int("success", successCount).
		Int("errors", failedCount).
		Msg("Batch processing completed")

	if failedCount > 0 {
		return fmt.Errorf("%d of %d files failed", failedCount, len(jobs))
	}
	return nil
}

// findBatchJobs lists the PDFs of folderPath with their sibling OCR JSON.
// Outputs of earlier runs are skipped.
func findBatchJobs(folderPath string) ([]batchJob, error) {
	var jobs []batchJob

	err := filepath.Walk(folderPath, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}

		name := strings.ToLower(info.Name())
		if info.IsDir() || !strings.HasSuffix(name, ".pdf") || strings.HasSuffix(name, searchableSuffix) {
			return nil
		}

		jobs = append(jobs, batchJob{
			PDFPath: path,
			OCRPath: strings.TrimSuffix(path, filepath.Ext(path)) + ".json",
			Index:   len(jobs),
		})
		return nil
	})

	return jobs, err
}

// processBatch runs jobs on a worker pool. Results keep the job order.
func processBatch(ctx context.Context, svc *searchable.Service, jobs []batchJob, format string, numWorkers int, dryRun bool, progress io.Writer, log zerolog.Logger) []batchResult {
	if numWorkers <= 0 {
		numWorkers = 1
	}

	jobCh := make(chan batchJob, len(jobs))
	results := make([]batchResult, len(jobs))

	var processedCount int
	var mu sync.Mutex

	var wg sync.WaitGroup
	for w := 0; w < numWorkers; w++ {
		wg.Add(1)
		go func(workerID int) {
			defer wg.Done()

			for job := range jobCh {
				log.Debug().
					Int("worker", workerID).
					Str("file", job.PDFPath).
					Int("index", job.Index+1).
					Msg("Worker processing PDF")

				result := processBatchJob(ctx, svc, job, format, dryRun)
				results[job.Index] = result

				mu.Lock()
				processedCount++
				fmt.Fprintf(progress, "[%d/%d] %s - %s", processedCount, len(jobs), result.File, result.Status)
				if result.Err != nil {
					fmt.Fprintf(progress, " (%s)", result.Err.Error())
				} else if result.Report != nil {
					fmt.Fprintf(progress, " (%d words)", result.Report.WordsPlaced)
				}
				fmt.Fprintln(progress)
				mu.Unlock()
			}
		}(w)
	}

	for _, job := range jobs {
		jobCh <- job
	}
	close(jobCh)

	wg.Wait()

	return results
}

// processBatchJob transforms a single PDF and writes X.searchable.pdf.
func processBatchJob(ctx context.Context, svc *searchable.Service, job batchJob, format string, dryRun bool) batchResult {
	start := time.Now()
	result := batchResult{
		FileResult: report.FileResult{File: filepath.Base(job.PDFPath), Status: report.StatusFailed},
		Index:      job.Index,
	}
	log := logger.WithFile("batch", result.File)

	fail := func(err error) batchResult {
		log.Warn().Err(err).Msg("File failed")
		result.Err = err
		result.Duration = time.Since(start)
		return result
	}

	ocrJSON, err := os.ReadFile(job.OCRPath)
	if err != nil {
		return fail(fmt.Errorf("no OCR result %s: %w", filepath.Base(job.OCRPath), err))
	}

	pdfFile, err := os.Open(job.PDFPath)
	if err != nil {
		return fail(fmt.Errorf("failed to open PDF file: %w", err))
	}
	defer pdfFile.Close()

	transformed, err := svc.TransformJSON(ctx, pdfFile, ocrJSON, format)
	if err != nil {
		return fail(err)
	}
	result.Report = transformed.Report

	if dryRun {
		result.Status = report.StatusDryRun
	} else {
		outputPath := strings.TrimSuffix(job.PDFPath, filepath.Ext(job.PDFPath)) + searchableSuffix
		if err := os.WriteFile(outputPath, transformed.PDF, 0644); err != nil {
			return fail(fmt.Errorf("failed to write output file: %w", err))
		}
		result.Status = report.StatusSuccess
	}

	result.Duration = time.Since(start)
	log.Debug().
		Int("words_placed", transformed.Report.WordsPlaced).
		Dur("duration", result.Duration).
		Msg("File processed")

	return result
}
