// Package report appends batch overlay results to a Google Sheet.
package report

import (
	"context"
	"fmt"
	"os"
	"regexp"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/oauth2/google"
	"google.golang.org/api/option"
	"google.golang.org/api/sheets/v4"

	"searchpdf/internal/compositor"
	"searchpdf/internal/logger"
)

// DefaultSheet is the worksheet batch results are appended to.
const DefaultSheet = "OCR Overlay"

// Batch statuses
const (
	StatusSuccess = "success"
	StatusFailed  = "failed"
	StatusDryRun  = "dry-run"
)

var headers = []interface{}{
	"File", "Pages", "Pages Overlaid", "Words Placed", "Words Skipped",
	"Status", "Error", "Duration", "Processed At",
}

var spreadsheetIDPattern = regexp.MustCompile(`/spreadsheets/d/([a-zA-Z0-9-_]+)`)

// FileResult is the outcome of overlaying one file of a batch.
type FileResult struct {
	File     string
	Report   *compositor.Report
	Status   string
	Err      error
	Duration time.Duration
}

// SheetsReporter writes batch results to a spreadsheet.
type SheetsReporter struct {
	sheetsService *sheets.Service
	spreadsheetID string
	log           zerolog.Logger
	now           func() time.Time
}

// NewSheetsReporter creates a reporter for the spreadsheet at sheetURL using
// service account credentials from GOOGLE_APPLICATION_CREDENTIALS or
// GOOGLE_CREDENTIALS.
func NewSheetsReporter(ctx context.Context, sheetURL string) (*SheetsReporter, error) {
	const op = "NewSheetsReporter"

	spreadsheetID, err := ExtractSpreadsheetID(sheetURL)
	if err != nil {
		return nil, fmt.Errorf("%s: failed to extract spreadsheet ID: %w", op, err)
	}

	var creds []byte
	if credsFile := os.Getenv("GOOGLE_APPLICATION_CREDENTIALS"); credsFile != "" {
		creds, err = os.ReadFile(credsFile)
		if err != nil {
			return nil, fmt.Errorf("%s: failed to read credentials file: %w", op, err)
		}
	} else if credsJSON := os.Getenv("GOOGLE_CREDENTIALS"); credsJSON != "" {
		creds = []byte(credsJSON)
	} else {
		return nil, fmt.Errorf("%s: neither GOOGLE_APPLICATION_CREDENTIALS nor GOOGLE_CREDENTIALS is set", op)
	}

	config, err := google.JWTConfigFromJSON(creds, sheets.SpreadsheetsScope)
	if err != nil {
		return nil, fmt.Errorf("%s: failed to parse credentials: %w", op, err)
	}

	sheetsService, err := sheets.NewService(ctx, option.WithHTTPClient(config.Client(ctx)))
	if err != nil {
		return nil, fmt.Errorf("%s: failed to create sheets service: %w", op, err)
	}

	return NewSheetsReporterWithService(sheetsService, spreadsheetID), nil
}

// NewSheetsReporterWithService creates a reporter on an existing client.
func NewSheetsReporterWithService(sheetsService *sheets.Service, spreadsheetID string) *SheetsReporter {
	log := logger.WithComponent("report")
	log.Debug().Str("spreadsheet_id", spreadsheetID).Msg("Sheets reporter created")

	return &SheetsReporter{
		sheetsService: sheetsService,
		spreadsheetID: spreadsheetID,
		log:           log,
		now:           time.Now,
	}
}

// ExtractSpreadsheetID returns the document id of a Google Sheets URL.
func ExtractSpreadsheetID(url string) (string, error) {
	matches := spreadsheetIDPattern.FindStringSubmatch(url)
	if len(matches) < 2 {
		return "", fmt.Errorf("invalid Google Sheets URL format")
	}
	return matches[1], nil
}

// WriteBatchResults appends one row per result to sheetName, creating the
// sheet and its header row when missing.
func (s *SheetsReporter) WriteBatchResults(ctx context.Context, results []FileResult, sheetName string) error {
	const op = "WriteBatchResults"

	if sheetName == "" {
		sheetName = DefaultSheet
	}

	s.log.Info().
		Str("sheet", sheetName).
		Int("rows", len(results)).
		Msg("Writing batch results to Google Sheet")

	if err := s.ensureSheetWithHeaders(ctx, sheetName); err != nil {
		return fmt.Errorf("%s: failed to ensure sheet exists: %w", op, err)
	}

	values := Rows(results, s.now())
	_, err := s.sheetsService.Spreadsheets.Values.Append(
		s.spreadsheetID,
		columnRange(sheetName),
		&sheets.ValueRange{Values: values},
	).ValueInputOption("USER_ENTERED").Context(ctx).Do()
	if err != nil {
		return fmt.Errorf("%s: failed to append values to sheet: %w", op, err)
	}

	s.log.Info().
		Int("rows_written", len(values)).
		Msg("Successfully wrote batch results to Google Sheet")

	return nil
}

// Rows converts results into sheet rows stamped with processedAt.
func Rows(results []FileResult, processedAt time.Time) [][]interface{} {
	stamp := processedAt.Format(time.RFC3339)
	values := make([][]interface{}, 0, len(results))

	for _, result := range results {
		var pages, overlaid, placed, skipped int
		if result.Report != nil {
			pages = len(result.Report.Pages)
			overlaid = result.Report.PagesOverlaid
			placed = result.Report.WordsPlaced
			skipped = result.Report.WordsSkipped
		}

		errText := ""
		if result.Err != nil {
			errText = result.Err.Error()
		}

		values = append(values, []interface{}{
			result.File,
			pages,
			overlaid,
			placed,
			skipped,
			result.Status,
			errText,
			result.Duration.Round(time.Millisecond).String(),
			stamp,
		})
	}

	return values
}

func columnRange(sheetName string) string {
	return fmt.Sprintf("'%s'!A:%c", sheetName, 'A'+len(headers)-1)
}

func (s *SheetsReporter) ensureSheetWithHeaders(ctx context.Context, sheetName string) error {
	const op = "ensureSheetWithHeaders"

	spreadsheet, err := s.sheetsService.Spreadsheets.Get(s.spreadsheetID).Context(ctx).Do()
	if err != nil {
		return fmt.Errorf("%s: failed to get spreadsheet: %w", op, err)
	}

	var (
		sheetExists bool
		sheetID     int64
	)
	for _, sheet := range spreadsheet.Sheets {
		if sheet.Properties != nil && sheet.Properties.Title == sheetName {
			sheetExists = true
			sheetID = sheet.Properties.SheetId
			break
		}
	}

	if !sheetExists {
		s.log.Info().Str("sheet", sheetName).Msg("Creating new sheet")

		resp, err := s.sheetsService.Spreadsheets.BatchUpdate(s.spreadsheetID, &sheets.BatchUpdateSpreadsheetRequest{
			Requests: []*sheets.Request{
				{AddSheet: &sheets.AddSheetRequest{Properties: &sheets.SheetProperties{Title: sheetName}}},
			},
		}).Context(ctx).Do()
		if err != nil {
			return fmt.Errorf("%s: failed to create sheet: %w", op, err)
		}
		if len(resp.Replies) == 0 || resp.Replies[0].AddSheet == nil {
			return fmt.Errorf("%s: empty reply creating sheet %q", op, sheetName)
		}
		sheetID = resp.Replies[0].AddSheet.Properties.SheetId
	}

	headerRange := fmt.Sprintf("'%s'!A1:%c1", sheetName, 'A'+len(headers)-1)
	resp, err := s.sheetsService.Spreadsheets.Values.Get(s.spreadsheetID, headerRange).Context(ctx).Do()
	if err != nil {
		return fmt.Errorf("%s: failed to get headers: %w", op, err)
	}

	if len(resp.Values) > 0 && len(resp.Values[0]) > 0 {
		return nil
	}

	s.log.Info().Str("sheet", sheetName).Msg("Adding headers to sheet")

	_, err = s.sheetsService.Spreadsheets.Values.Update(
		s.spreadsheetID,
		headerRange,
		&sheets.ValueRange{Values: [][]interface{}{headers}},
	).ValueInputOption("RAW").Context(ctx).Do()
	if err != nil {
		return fmt.Errorf("%s: failed to add headers: %w", op, err)
	}

	if err := s.formatHeaders(ctx, sheetID); err != nil {
		s.log.Warn().Err(err).Msg("Failed to format headers, continuing anyway")
	}

	return nil
}

// formatHeaders makes the header row bold and resizes the columns.
func (s *SheetsReporter) formatHeaders(ctx context.Context, sheetID int64) error {
	const op = "formatHeaders"

	columns := int64(len(headers))
	requests := []*sheets.Request{
		{
			RepeatCell: &sheets.RepeatCellRequest{
				Range: &sheets.GridRange{
					SheetId:          sheetID,
					StartRowIndex:    0,
					EndRowIndex:      1,
					StartColumnIndex: 0,
					EndColumnIndex:   columns,
				},
				Cell: &sheets.CellData{
					UserEnteredFormat: &sheets.CellFormat{
						TextFormat:      &sheets.TextFormat{Bold: true},
						BackgroundColor: &sheets.Color{Red: 0.9, Green: 0.9, Blue: 0.9},
					},
				},
				Fields: "userEnteredFormat(textFormat,backgroundColor)",
			},
		},
		{
			AutoResizeDimensions: &sheets.AutoResizeDimensionsRequest{
				Dimensions: &sheets.DimensionRange{
					SheetId:    sheetID,
					Dimension:  "COLUMNS",
					StartIndex: 0,
					EndIndex:   columns,
				},
			},
		},
	}

	_, err := s.sheetsService.Spreadsheets.BatchUpdate(s.spreadsheetID, &sheets.BatchUpdateSpreadsheetRequest{Requests: requests}).Context(ctx).Do()
	if err != nil {
		return fmt.Errorf("%s: failed to format headers: %w", op, err)
	}

	return nil
}
