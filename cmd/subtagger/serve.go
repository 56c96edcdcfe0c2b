package main

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/John-Robertt/subtagger/internal/fetch"
	"github.com/John-Robertt/subtagger/internal/httpapi"
)

const defaultListen = "127.0.0.1:25500"

type serveFlags struct {
	listen            string
	readHeaderTimeout time.Duration
	requestTimeout    time.Duration
	shutdownTimeout   time.Duration
}

func newServeCmd(g *globalFlags) *cobra.Command {
	var f serveFlags

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the tagging HTTP API",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := g.load()
			if err != nil {
				return err
			}
			defer rt.close()
			return runServe(cmd.Context(), rt, f)
		},
	}

	fl := cmd.Flags()
	fl.StringVar(&f.listen, "listen", defaultListen, "HTTP 监听地址")
	fl.DurationVar(&f.readHeaderTimeout, "read-header-timeout", 5*time.Second, "HTTP ReadHeaderTimeout（请求头读取超时）")
	fl.DurationVar(&f.requestTimeout, "request-timeout", 60*time.Second, "单次请求的总超时（包含节点列表与探测结果拉取）")
	fl.DurationVar(&f.shutdownTimeout, "shutdown-timeout", 10*time.Second, "收到退出信号后的优雅退出等待时间")
	return cmd
}

// runServe blocks until ctx is canceled (SIGINT/SIGTERM) or the listener fails.
func runServe(ctx context.Context, rt *runtime, f serveFlags) error {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	srv := &http.Server{
		Addr: f.listen,
		Handler: httpapi.NewHandler(httpapi.Options{
			Tagger:         rt.operator,
			RequestTimeout: f.requestTimeout,
			NodeFetch:      fetch.Options{Timeout: rt.cfg.FetchTimeout},
			Logger:         rt.logger,
			Registry:       reg,
		}),
		ReadHeaderTimeout: f.readHeaderTimeout,
	}

	rt.logger.Info("listening", zap.String("addr", "http://"+f.listen), zap.Stringer("mode", rt.cfg.TagMode()))

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		rt.logger.Info("shutdown signal received")

		shCtx, cancel := context.WithTimeout(context.Background(), f.shutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shCtx); err != nil {
			rt.logger.Warn("graceful shutdown failed", zap.Error(err))
			_ = srv.Close()
		}

		err := <-errCh
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	}
}
