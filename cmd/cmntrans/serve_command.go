package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/spf13/cobra"

	"github.com/Sakimotor/TranslationFramework2/internal/httpapi"
	"github.com/Sakimotor/TranslationFramework2/internal/service"
	"github.com/Sakimotor/TranslationFramework2/pkg/log"
)

const shutdownTimeout = 10 * time.Second

type httpServer interface {
	ListenAndServe(addr string) error
	Shutdown(ctx context.Context) error
}

type scheduler interface {
	Schedule(ctx context.Context) error
	Start()
	Stop() context.Context
}

func newServeCommand(ctx *commandContext) *cobra.Command {
	var (
		addr     string
		schedule bool
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the project over a JSON API until interrupted",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withService(func(svc *service.ProjectService) error {
				cfg, err := ctx.ensureConfig()
				if err != nil {
					return err
				}
				srv := httpapi.NewServer(svc, cfg, httpapi.WithProjectFile(ctx.projectPath()))

				var sched scheduler
				if schedule {
					sched = svc
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Listening on http://%s\n", addr)
				return runServe(cmd.Context(), addr, srv, sched)
			})
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "127.0.0.1:8735", "Listen address")
	cmd.Flags().BoolVar(&schedule, "schedule", false, "Also rebuild changed assets on the configured cron schedule")
	return cmd
}

// runServe blocks until ctx is cancelled or the listener fails, then shuts
// the server down and waits for a running scheduled rebuild.
func runServe(ctx context.Context, addr string, srv httpServer, sched scheduler) error {
	if sched != nil {
		if err := sched.Schedule(ctx); err != nil {
			return err
		}
		sched.Start()
		defer func() {
			<-sched.Stop().Done()
		}()
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe(addr)
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return service.WrapError(err, service.ErrConfig, "http server failed").
			WithContext("addr", addr)
	case <-ctx.Done():
	}

	log.Info("Shutting down http server")
	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown http server: %w", err)
	}
	if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
