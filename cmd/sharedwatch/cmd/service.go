package cmd

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"golang.org/x/sync/errgroup"

	"github.com/Aman-CERP/sharedwatch/pkg/sharedwatch"
)

// runService runs a service's consumer loop alongside fn and returns fn's
// error. The loop stops once fn returns or the process is interrupted.
func (a *app) runService(ctx context.Context, fn func(ctx context.Context, svc *sharedwatch.Service) error) error {
	svc, err := sharedwatch.New(sharedwatch.Options{Config: a.cfg, Logger: a.logger})
	if err != nil {
		return err
	}
	defer func() { _ = svc.Close() }()

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	ctx, cancel := context.WithCancel(ctx)
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return svc.Run(gctx)
	})
	g.Go(func() error {
		defer cancel()
		return fn(gctx, svc)
	})

	return g.Wait()
}
