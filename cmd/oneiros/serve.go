package main

import (
	"bytes"
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/dimiro1/banner"
	"github.com/spf13/cobra"

	httpadapter "github.com/PabloGalante/oneiros/internal/adapters/http"
	"github.com/PabloGalante/oneiros/internal/capture"
	"github.com/PabloGalante/oneiros/internal/config"
	"github.com/PabloGalante/oneiros/internal/credential"
	"github.com/PabloGalante/oneiros/internal/domain"
	"github.com/PabloGalante/oneiros/internal/observability"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API",
	Long: `Run the HTTP API used by the web client.

Clients push microphone chunks to /capture/* or post a finished recording to
/recordings, follow progress on the /events websocket and read dreams from
/dreams.`,
	Args: cobra.NoArgs,
	RunE: runServe,
}

func printBanner() {
	tpl := "{{ .Title \"ONEIROS\" \"\" 0 }}\nVersion: " + version + "\n"
	banner.Init(os.Stdout, true, true, bytes.NewBufferString(tpl))
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	printBanner()
	log := observability.Init(os.Stdout, cfg.LogLevel, cfg.LogFormat)

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	hub := httpadapter.NewHub(cfg.HTTP.CORSOrigin)
	defer hub.Close()

	keys := credential.NewStore(cfg.LLM.APIKey)

	var (
		remote   *credential.RemoteSelector
		selector domain.KeySelector = credential.Ambient{}
	)
	if needsKey(cfg) {
		remote = credential.NewRemoteSelector(keys, hub)
		selector = remote
	}

	gw, err := buildGateway(ctx, cfg, keys, selector)
	if err != nil {
		return err
	}

	st := buildStudio(cfg, gw, capture.NewUploadDevice(cfg.Capture.Enabled), selector, hub)

	srv := &http.Server{
		Addr: ":" + cfg.Port,
		Handler: httpadapter.NewServer(httpadapter.Options{
			Studio:     st,
			Keys:       remote,
			Hub:        hub,
			CORSOrigin: cfg.HTTP.CORSOrigin,
		}),
		ReadHeaderTimeout: cfg.HTTP.ReadHeaderTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info("oneiros listening", "port", cfg.Port, "mode", cfg.Mode, "mock", cfg.LLM.UseMock)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	log.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}
