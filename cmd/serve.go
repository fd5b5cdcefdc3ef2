package cmd

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/andresmejia3/redactor/internal/accumulate"
	"github.com/andresmejia3/redactor/internal/api"
	"github.com/andresmejia3/redactor/internal/assemble"
	"github.com/andresmejia3/redactor/internal/chunk"
	"github.com/andresmejia3/redactor/internal/utils"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

var (
	serveAddr    string
	serveFormat  string
	serveVerify  bool
	serveTempDir string
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the chunk worker and stitcher over HTTP",
	RunE: func(cmd *cobra.Command, args []string) error {
		cmd.SilenceUsage = true
		return runServe(cmd.Context())
	},
}

func init() {
	serveCmd.Flags().StringVar(&serveAddr, "addr", ":8080", "Listen address")
	serveCmd.Flags().StringVar(&serveFormat, "format", string(chunk.FormatJPEG), "Redacted frame encoding: jpeg, png")
	serveCmd.Flags().BoolVar(&serveVerify, "verify", false, "Probe every encoded video with ffprobe before uploading")
	serveCmd.Flags().StringVar(&serveTempDir, "temp-dir", "", "Directory for intermediate video files")
	rootCmd.AddCommand(serveCmd)
}

func runServe(ctx context.Context) error {
	if f := chunk.Format(serveFormat); f != chunk.FormatJPEG && f != chunk.FormatPNG {
		return fmt.Errorf("unknown frame format %q", serveFormat)
	}
	log := logrus.StandardLogger()
	assembleOpts := []assemble.Option{assemble.WithEncoder(newEncoder), assemble.WithTempDir(serveTempDir)}
	if serveVerify {
		assembleOpts = append(assembleOpts, assemble.WithVerifier(utils.ProbeVideo))
	}

	app := &api.App{
		Objects:     Objects,
		Catalogs:    Catalogs,
		Processor:   chunk.NewProcessor(Objects, chunk.WithFormat(chunk.Format(serveFormat))),
		Accumulator: accumulate.New(Catalogs),
		Assembler:   assemble.New(Objects, assembleOpts...),
		Log:         log,
	}
	srv := &http.Server{
		Addr:              serveAddr,
		Handler:           api.NewRouter(app),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		fmt.Fprintf(os.Stderr, "🌐 Listening on %s\n", serveAddr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			utils.ShowError("HTTP server failed", err, nil)
			return err
		}
		return nil
	case <-ctx.Done():
		log.Info("Shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	}
}
