package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	sdkmcp "github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/spf13/cobra"

	"github.com/medisutra/bridge/internal/config"
	"github.com/medisutra/bridge/internal/domain/csvimport"
	"github.com/medisutra/bridge/internal/domain/terminology"
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "bridge-server",
		Short: "NAMASTE / ICD-11 / TM2 terminology bridge",
	}

	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(importCmd())
	rootCmd.AddCommand(templateCmd())
	rootCmd.AddCommand(mcpCmd())
	rootCmd.AddCommand(syncICDCmd())

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the REST, FHIR and MCP server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer()
		},
	}
}

func importCmd() *cobra.Command {
	var validateOnly bool
	cmd := &cobra.Command{
		Use:   "import [file]",
		Short: "Import NAMASTE codes and mappings from a CSV or XLSX file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			content, err := os.ReadFile(args[0])
			if err != nil {
				return fmt.Errorf("read %s: %w", args[0], err)
			}

			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			cfg.SeedData = false
			logger := newLogger(cfg, os.Stderr)
			if cfg.Storage == config.StorageMemory && !validateOnly {
				logger.Warn().Msg("memory storage: imported records are discarded on exit")
			}

			ctx := context.Background()
			a, err := newApp(ctx, cfg, logger)
			if err != nil {
				return err
			}
			defer a.Close()

			res, err := runImport(ctx, a.importer, args[0], content, validateOnly)
			if res != nil {
				if werr := writeJSON(cmd.OutOrStdout(), res); werr != nil {
					return werr
				}
			}
			if err != nil {
				return err
			}
			if !res.Success {
				return fmt.Errorf("%d of %d rows failed", res.FailedImports, res.TotalRows)
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&validateOnly, "validate-only", false, "validate rows without storing them")
	return cmd
}

// runImport picks the reader by file extension.
func runImport(ctx context.Context, im *csvimport.Importer, name string, content []byte, validateOnly bool) (*csvimport.ImportResult, error) {
	if strings.EqualFold(filepath.Ext(name), ".xlsx") {
		return im.ImportXLSX(ctx, content, validateOnly)
	}
	return im.ImportCSV(ctx, content, validateOnly)
}

func templateCmd() *cobra.Command {
	var format, output string
	cmd := &cobra.Command{
		Use:   "template",
		Short: "Write the NAMASTE import template",
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := templateBytes(format)
			if err != nil {
				return err
			}
			if output == "" || output == "-" {
				_, err := cmd.OutOrStdout().Write(data)
				return err
			}
			return os.WriteFile(output, data, 0o644)
		},
	}
	cmd.Flags().StringVar(&format, "format", "csv", "template format: csv or xlsx")
	cmd.Flags().StringVarP(&output, "output", "o", "", "output file (default stdout)")
	return cmd
}

func templateBytes(format string) ([]byte, error) {
	switch strings.ToLower(format) {
	case "", "csv":
		return csvimport.GenerateTemplate(), nil
	case "xlsx":
		return csvimport.GenerateTemplateXLSX()
	}
	return nil, fmt.Errorf("unknown template format %q", format)
}

func mcpCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "mcp",
		Short: "Serve the terminology tools over MCP on stdio",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			// stdout carries the protocol
			logger := newLogger(cfg, os.Stderr)

			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			a, err := newApp(ctx, cfg, logger)
			if err != nil {
				return err
			}
			defer a.Close()

			logger.Info().Str("version", version).Msg("starting mcp server on stdio")
			return a.mcpServer().Run(ctx, &sdkmcp.StdioTransport{})
		},
	}
}

func syncICDCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "sync-icd [code...]",
		Short: "Fetch ICD-11 codes from the WHO API into the repository",
		Long: "Fetch the given ICD-11 MMS codes from the WHO API. Without arguments, " +
			"every ICD-11 code targeted by a mapping but missing from the repository is fetched.",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			logger := newLogger(cfg, os.Stderr)
			if !cfg.WHOEnabled() {
				logger.Warn().Str("base_url", cfg.WHOBaseURL).Msg("no WHO API credentials, sending unauthenticated requests")
			}

			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			a, err := newApp(ctx, cfg, logger)
			if err != nil {
				return err
			}
			defer a.Close()

			client := a.whoClient()
			var res *terminology.SyncResult
			if len(args) > 0 {
				res, err = a.svc.SyncICD(ctx, client, args)
			} else {
				res, err = a.svc.SyncMissingICD(ctx, client)
			}
			if err != nil {
				return err
			}
			return writeJSON(cmd.OutOrStdout(), res)
		},
	}
}

func writeJSON(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
