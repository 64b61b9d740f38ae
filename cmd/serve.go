package cmd

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"searchpdf/internal/logger"
	"searchpdf/internal/server"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the searchable PDF transform over HTTP",
	Long: `Start an HTTP server exposing:

  POST /document  multipart form with file parts "pdf" and "ocr-json"
                  (optional field "format": vision, documentai)
                  responds with the searchable PDF
  GET  /healthz   liveness probe

Optional environment variables:
  SERVER_ADDR       Listen address (default: :8080)
  MAX_UPLOAD_BYTES  Maximum PDF size in bytes (default: 20MB)`,
	Example: `  searchpdf serve --addr :9000

  curl -F pdf=@scan.pdf -F ocr-json=@scan.json http://localhost:9000/document -o scan.searchable.pdf`,
	Args: cobra.NoArgs,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().String("addr", "", "Listen address (default: SERVER_ADDR)")
}

func runServe(cmd *cobra.Command, args []string) error {
	log := logger.WithComponent("serve")

	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	addr, _ := cmd.Flags().GetString("addr")
	if addr == "" {
		addr = cfg.ServerAddr
	}

	svc, err := newTransformService(cfg)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	log.Info().
		Str("addr", addr).
		Int64("max_upload_bytes", cfg.MaxUploadBytes).
		Msg("Starting searchable PDF server")

	srv := server.New(svc, server.Config{
		Addr: addr,
		// Leave room for the OCR JSON and multipart framing.
		MaxUploadBytes: 2 * cfg.MaxUploadBytes,
	})
	return srv.Run(ctx)
}
