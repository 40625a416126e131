package main

import (
	"context"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/xjtu-graphics/judgerd/internal/config"
	"github.com/xjtu-graphics/judgerd/internal/executorapi"
	"github.com/xjtu-graphics/judgerd/internal/heartbeat"
	"github.com/xjtu-graphics/judgerd/internal/templatecache"
	"github.com/xjtu-graphics/judgerd/internal/webclient"
)

func newExecutorCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "executor",
		Short: "run the Executor: HTTP judge intake plus the heartbeat reporter",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runExecutor()
		},
	}
}

func runExecutor() error {
	cfg, err := config.LoadExecutor(resolveConfigPath())
	if err != nil {
		fatal("invalid executor configuration", "error", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	tokenCache := webclient.NewTokenCache(cfg.TmpDir, "executor")
	webClient := webclient.NewClient(
		webBaseURL(cfg.WebServerIP, cfg.WebServerPort),
		cfg.WebAccount, cfg.WebPassword, tokenCache,
	)

	templates, err := templatecache.New(webClient, cfg.TmpDir)
	if err != nil {
		fatal("open template cache failed", "error", err)
	}

	srv := &executorapi.Server{
		WebClient:     webClient,
		Templates:     templates,
		TmpDir:        cfg.TmpDir,
		ManagerIP:     cfg.ManagerIP,
		ManagerPort:   cfg.ManagerPort,
		ExecutorPort:  cfg.ExecutorPort,
		ParallelBuild: cfg.ParallelBuild,
	}
	router := executorapi.NewRouter(srv)

	httpSrv := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.ExecutorPort),
		Handler: router,
	}
	go func() {
		if err := httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			fatal("executor http server failed", "error", err)
		}
	}()

	reporter := heartbeat.New(cfg.ManagerIP, cfg.ManagerPort, cfg.ExecutorPort, cfg.KeepAliveInterval)
	reporter.Start(ctx)

	<-ctx.Done()

	reporter.Stop()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return httpSrv.Shutdown(shutdownCtx)
}
