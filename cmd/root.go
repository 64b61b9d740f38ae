package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"searchpdf/internal/config"
	"searchpdf/internal/logger"
	"searchpdf/internal/searchable"
)

var version = "1.0.0"

var rootCmd = &cobra.Command{
	Use:   "searchpdf",
	Short: "searchpdf - make scanned PDFs searchable with an invisible OCR text layer",
	Long: `searchpdf stamps every word recognized by an OCR engine as invisible,
selectable text over its image region, so scanned PDFs become searchable
and copyable without changing how they look.

OCR results can come from saved Google Cloud Vision or Document AI JSON
responses (overlay, batch, serve) or from a live API call (ocr).`,
	Version:       version,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func Execute() {
	log := logger.WithComponent("cmd")

	if err := rootCmd.Execute(); err != nil {
		log.Error().
			Err(err).
			Msg("Command execution failed")
		fmt.Fprintf(os.Stderr, "Error executing command: %v\n", err)
		os.Exit(1)
	}
}

// loadConfig reads the environment configuration for a command.
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// newTransformService builds the searchable PDF service from cfg.
func newTransformService(cfg *config.Config) (*searchable.Service, error) {
	font, err := cfg.OverlayFont()
	if err != nil {
		return nil, err
	}
	solver, err := cfg.FontSizeConfig()
	if err != nil {
		return nil, err
	}

	return searchable.NewService(searchable.Options{
		Font:     font,
		Solver:   &solver,
		MaxBytes: cfg.MaxUploadBytes,
	})
}
