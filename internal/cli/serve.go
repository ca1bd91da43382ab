package cli

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/spf13/cobra"

	"github.com/forPelevin/aishorts/internal/server"
)

func newServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the shorts and subtitles flows over HTTP with live job status",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			// runs are bounded by --run-timeout, not the command timeout
			e, err := setup(cmd, "json", false)
			if err != nil {
				return err
			}
			defer e.close()

			addr, _ := cmd.Flags().GetString("addr")
			uploads, _ := cmd.Flags().GetString("uploads")
			roots, _ := cmd.Flags().GetStringArray("input-root")
			runTimeout, _ := cmd.Flags().GetDuration("run-timeout")
			runTTL, _ := cmd.Flags().GetDuration("run-ttl")

			app := server.NewApp(e.logger, e.pipe, server.Options{
				UploadsDir: uploads,
				InputRoots: roots,
				RunTimeout: runTimeout,
			})
			app.StartCleanupLoop(e.ctx, 10*time.Minute, runTTL)

			srv := &http.Server{
				Addr:              addr,
				Handler:           app.Router(),
				ReadHeaderTimeout: 10 * time.Second,
				ReadTimeout:       5 * time.Minute,
				IdleTimeout:       2 * time.Minute,
			}

			errCh := make(chan error, 1)
			go func() {
				e.logger.Info("server started", "addr", addr)
				errCh <- srv.ListenAndServe()
			}()

			select {
			case err := <-errCh:
				app.Close()
				if errors.Is(err, http.ErrServerClosed) {
					return nil
				}
				return err
			case <-e.ctx.Done():
			}

			e.logger.Info("shutting down server")
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
			defer cancel()
			err = srv.Shutdown(shutdownCtx)
			app.Close()
			if err != nil {
				return err
			}
			e.logger.Info("server stopped")
			return nil
		},
	}
	cmd.Flags().String("addr", ":8080", "Listen address")
	cmd.Flags().String("uploads", "uploads", "Directory for uploaded inputs")
	cmd.Flags().StringArray("input-root", nil, "Extra directory requests may reference (repeatable)")
	cmd.Flags().Duration("run-timeout", 2*time.Hour, "Maximum duration of one run")
	cmd.Flags().Duration("run-ttl", 24*time.Hour, "How long finished runs stay queryable")
	return cmd
}
