// Package server exposes the searchable PDF transform over HTTP.
//
// Endpoints:
//   - POST /document  multipart form with file parts "pdf" and "ocr-json",
//     optional form value "format" (vision, documentai). Responds with the
//     searchable PDF.
//   - GET /healthz    liveness probe.
//
// Client errors (missing parts, malformed OCR JSON, unreadable PDF) answer 400,
// oversized uploads 413, requests canceled mid-transform 503, everything else
// 500. Errors are returned as JSON {"error": "...", "request_id": "..."}.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"searchpdf/internal/logger"
	"searchpdf/internal/searchable"
)

// Form part names of POST /document.
const (
	PartPDF     = "pdf"
	PartOCRJSON = "ocr-json"
	FieldFormat = "format"
)

// RequestIDHeader carries the request id in both directions.
const RequestIDHeader = "X-Request-ID"

// DefaultMaxUploadBytes bounds a whole multipart request.
const DefaultMaxUploadBytes int64 = 2 * searchable.DefaultMaxBytes

const shutdownTimeout = 10 * time.Second

const maxRequestIDLength = 64

// Transformer is the part of searchable.Service used by the handler.
type Transformer interface {
	TransformJSON(ctx context.Context, pdf io.Reader, ocrJSON []byte, format string) (*searchable.Result, error)
}

// Config configures a Server.
type Config struct {
	Addr           string
	MaxUploadBytes int64
}

// Server serves the transform endpoint.
type Server struct {
	transformer Transformer
	config      Config
	log         zerolog.Logger
}

// New creates a Server.
func New(transformer Transformer, config Config) *Server {
	if config.MaxUploadBytes <= 0 {
		config.MaxUploadBytes = DefaultMaxUploadBytes
	}
	if config.Addr == "" {
		config.Addr = ":8080"
	}

	return &Server{
		transformer: transformer,
		config:      config,
		log:         logger.WithComponent("server"),
	}
}

// Handler returns the routed handler.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /document", s.handleDocument)
	mux.HandleFunc("GET /healthz", handleHealth)
	return s.withRequestID(mux)
}

// Run serves until ctx is canceled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.config.Addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.log.Info().Str("addr", s.config.Addr).Msg("HTTP server listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("HTTP server failed: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	s.log.Info().Msg("Shutting down HTTP server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("HTTP server shutdown failed: %w", err)
	}
	return nil
}

func (s *Server) withRequestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := r.Header.Get(RequestIDHeader)
		if !validRequestID(requestID) {
			requestID = uuid.NewString()
		}
		w.Header().Set(RequestIDHeader, requestID)

		log := s.log.With().Str("request_id", requestID).Logger()
		next.ServeHTTP(w, r.WithContext(log.WithContext(r.Context())))
	})
}

// validRequestID accepts short tokens of letters, digits, '-', '_' and '.'.
// Anything else is replaced rather than echoed.
func validRequestID(id string) bool {
	if id == "" || len(id) > maxRequestIDLength {
		return false
	}
	for _, c := range []byte(id) {
		switch {
		case c >= 'a' && c <= 'z', c >= 'A' && c <= 'Z', c >= '0' && c <= '9':
		case c == '-', c == '_', c == '.':
		default:
			return false
		}
	}
	return true
}

func handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	_, _ = io.WriteString(w, "ok")
}

func (s *Server) handleDocument(w http.ResponseWriter, r *http.Request) {
	log := logger.WithContext(r.Context())
	start := time.Now()

	r.Body = http.MaxBytesReader(w, r.Body, s.config.MaxUploadBytes)
	if err := r.ParseMultipartForm(s.config.MaxUploadBytes); err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			respondWithError(w, log, err, fmt.Sprintf("request body exceeds %d bytes", maxErr.Limit), http.StatusRequestEntityTooLarge)
			return
		}
		respondWithError(w, log, err, "expected a multipart form", http.StatusBadRequest)
		return
	}
	defer func() {
		if err := r.MultipartForm.RemoveAll(); err != nil {
			log.Warn().Err(err).Msg("Failed to remove multipart temp files")
		}
	}()

	format := r.FormValue(FieldFormat)
	if format == "" {
		format = searchable.FormatVision
	}
	if !searchable.ValidFormat(format) {
		respondWithError(w, log, nil, fmt.Sprintf("unknown OCR format %q", format), http.StatusBadRequest)
		return
	}

	ocrJSON, _, err := readPart(r, PartOCRJSON)
	if err != nil {
		respondWithError(w, log, err, err.Error(), http.StatusBadRequest)
		return
	}

	pdfFile, header, err := r.FormFile(PartPDF)
	if err != nil {
		respondWithError(w, log, err, fmt.Sprintf("missing file part %q", PartPDF), http.StatusBadRequest)
		return
	}
	defer pdfFile.Close()

	log.Info().
		Str("file", header.Filename).
		Int64("size", header.Size).
		Str("format", format).
		Msg("Transforming document")

	result, err := s.transformer.TransformJSON(r.Context(), pdfFile, ocrJSON, format)
	if err != nil {
		status, message := statusForError(err)
		respondWithError(w, log, err, message, status)
		return
	}

	w.Header().Set("Content-Type", "application/pdf")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", outputName(header.Filename)))
	w.Header().Set("Content-Length", strconv.Itoa(len(result.PDF)))
	w.Header().Set("X-Words-Placed", strconv.Itoa(result.Report.WordsPlaced))
	w.Header().Set("X-Words-Skipped", strconv.Itoa(result.Report.WordsSkipped))
	w.WriteHeader(http.StatusOK)

	if _, err := w.Write(result.PDF); err != nil {
		log.Warn().Err(err).Msg("Failed to write response")
		return
	}

	log.Info().
		Int("bytes", len(result.PDF)).
		Int("words_placed", result.Report.WordsPlaced).
		Dur("duration", time.Since(start)).
		Msg("Document transformed")
}

func readPart(r *http.Request, name string) ([]byte, string, error) {
	file, header, err := r.FormFile(name)
	if err != nil {
		return nil, "", fmt.Errorf("missing file part %q", name)
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		return nil, "", fmt.Errorf("failed to read file part %q", name)
	}
	return data, header.Filename, nil
}

// statusForError maps transform errors onto HTTP status codes.
func statusForError(err error) (int, string) {
	switch {
	case errors.Is(err, searchable.ErrDocumentTooLarge):
		return http.StatusRequestEntityTooLarge, "PDF document too large"
	case errors.Is(err, searchable.ErrInvalidInput):
		return http.StatusBadRequest, "invalid OCR JSON"
	case errors.Is(err, searchable.ErrInvalidPDF):
		return http.StatusBadRequest, "invalid PDF document"
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return http.StatusServiceUnavailable, "request canceled"
	default:
		return http.StatusInternalServerError, "failed to create searchable PDF"
	}
}

func outputName(uploaded string) string {
	base := filepath.Base(uploaded)
	if base == "." || base == "/" || base == "" {
		return "document.searchable.pdf"
	}
	return strings.TrimSuffix(base, filepath.Ext(base)) + ".searchable.pdf"
}

type errorResponse struct {
	Error     string `json:"error"`
	RequestID string `json:"request_id,omitempty"`
}

func respondWithError(w http.ResponseWriter, log *zerolog.Logger, err error, message string, status int) {
	event := log.Warn()
	if status >= http.StatusInternalServerError {
		event = log.Error()
	}
	event.Err(err).Int("status", status).Msg(message)

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(errorResponse{
		Error:     message,
		RequestID: w.Header().Get(RequestIDHeader),
	})
}
