package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/charmbracelet/log"
	"github.com/danielgtaylor/huma/v2/humacli"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/joeblew999/plat-overlay/internal/server"
	"github.com/joeblew999/plat-overlay/internal/service"
	"github.com/joeblew999/plat-overlay/internal/store"
)

// Options defines all CLI flags and env vars for the overlay server.
// Flags: --host, --port, --data-dir, --web-dir, --store, --max-raster-mb, --verbose
// Env vars: SERVICE_HOST, SERVICE_PORT, SERVICE_DATA_DIR, SERVICE_WEB_DIR, ...
type Options struct {
	Host        string `doc:"Host to bind to" default:"0.0.0.0"`
	Port        int    `doc:"Port to listen on" short:"p" default:"8086"`
	DataDir     string `doc:"Directory for persisted state" default:".data"`
	WebDir      string `doc:"Path to web/ directory" default:"web"`
	Store       string `doc:"Snapshot store backend (file, duckdb, sqlite, memory)" default:"file"`
	MaxRasterMB int    `doc:"Largest accepted GeoTIFF upload in MiB, 0 for no limit" default:"256"`
	Verbose     bool   `doc:"Enable debug logging"`
}

func newServer(opts *Options, logger *log.Logger) (*server.Server, error) {
	return server.New(server.Config{
		Host:           opts.Host,
		Port:           fmt.Sprintf("%d", opts.Port),
		DataDir:        opts.DataDir,
		WebDir:         opts.WebDir,
		Store:          opts.Store,
		MaxRasterBytes: int64(opts.MaxRasterMB) << 20,
		Logger:         logger,
	})
}

func main() {
	cli := humacli.New(func(hooks humacli.Hooks, opts *Options) {
		logger := newLogger(os.Stderr, opts.Verbose)
		var httpServer *http.Server

		hooks.OnStart(func() {
			srv, err := newServer(opts, logger)
			if err != nil {
				logger.Fatal("starting server", "err", err)
			}
			defer srv.Close()

			addr := fmt.Sprintf("%s:%d", opts.Host, opts.Port)
			displayHost := opts.Host
			if displayHost == "0.0.0.0" {
				displayHost = "localhost"
			}
			baseURL := fmt.Sprintf("http://%s:%d", displayHost, opts.Port)

			fmt.Println()
			fmt.Printf("plat-overlay server starting...\n")
			fmt.Printf("  Server:  %s\n", baseURL)
			fmt.Printf("  Data:    %s (%s store)\n", opts.DataDir, opts.Store)
			fmt.Println()
			fmt.Printf("  Viewer:  %s/viewer\n", baseURL)
			fmt.Printf("  Docs:    %s/docs\n", baseURL)
			fmt.Printf("  OpenAPI: %s/openapi.json\n", baseURL)
			fmt.Println()

			httpServer = &http.Server{Addr: addr, Handler: srv}
			if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Fatal("server error", "err", err)
			}
		})

		hooks.OnStop(func() {
			if httpServer == nil {
				return
			}
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := httpServer.Shutdown(ctx); err != nil {
				logger.Error("shutting down", "err", err)
			}
		})
	})

	cli.Root().Use = "overlay"
	cli.Root().Short = "Map overlay server for GeoJSON and GeoTIFF layers"
	cli.Root().Version = "0.1.0"

	// spec subcommand: export OpenAPI spec
	specCmd := &cobra.Command{
		Use:   "spec",
		Short: "Export OpenAPI spec (JSON by default, --yaml for YAML)",
		Run: humacli.WithOptions(func(cmd *cobra.Command, args []string, opts *Options) {
			opts.Store = store.BackendMemory
			srv, err := newServer(opts, newLogger(os.Stderr, opts.Verbose))
			if err != nil {
				fmt.Fprintf(os.Stderr, "Error creating server: %v\n", err)
				os.Exit(1)
			}
			defer srv.Close()
			spec := srv.OpenAPI()

			useYAML, _ := cmd.Flags().GetBool("yaml")

			var output []byte
			if useYAML {
				output, err = yaml.Marshal(spec)
			} else {
				output, err = json.MarshalIndent(spec, "", "  ")
			}
			if err != nil {
				fmt.Fprintf(os.Stderr, "Error marshaling spec: %v\n", err)
				os.Exit(1)
			}
			fmt.Println(string(output))
		}),
	}
	specCmd.Flags().BoolP("yaml", "y", false, "Output as YAML instead of JSON")
	cli.Root().AddCommand(specCmd)

	// snapshot subcommand: print the persisted layer snapshot
	snapshotCmd := &cobra.Command{
		Use:   "snapshot",
		Short: "Print the stored layer snapshot as JSON",
		Run: humacli.WithOptions(func(cmd *cobra.Command, args []string, opts *Options) {
			out, err := readSnapshot(cmd.Context(), opts.Store, opts.DataDir)
			if err != nil {
				fmt.Fprintf(os.Stderr, "Error reading snapshot: %v\n", err)
				os.Exit(1)
			}
			fmt.Println(string(out))
		}),
	}
	cli.Root().AddCommand(snapshotCmd)

	cli.Run()
}

// readSnapshot returns the indented snapshot stored in backend, or an
// empty snapshot when none was saved.
func readSnapshot(ctx context.Context, backend, dataDir string) ([]byte, error) {
	st, err := store.Open(backend, dataDir)
	if err != nil {
		return nil, err
	}
	defer st.Close()

	raw, ok, err := st.Get(ctx, service.SnapshotKey)
	if err != nil {
		return nil, err
	}
	if !ok {
		raw = []byte(`{"layers":[]}`)
	}
	var buf bytes.Buffer
	if err := json.Indent(&buf, raw, "", "  "); err != nil {
		return nil, fmt.Errorf("stored snapshot is not JSON: %w", err)
	}
	return buf.Bytes(), nil
}
