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
	"github.com/xjtu-graphics/judgerd/internal/dispatcher"
	"github.com/xjtu-graphics/judgerd/internal/managerapi"
	"github.com/xjtu-graphics/judgerd/internal/store"
	"github.com/xjtu-graphics/judgerd/internal/webclient"
)

func newManagerCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "manager",
		Short: "run the Manager: HTTP intake/heartbeat/result faces plus the dispatch loop",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runManager()
		},
	}
}

func runManager() error {
	cfg, err := config.LoadManager(resolveConfigPath())
	if err != nil {
		fatal("invalid manager configuration", "error", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	pool, err := store.NewPool(ctx, cfg.DatabaseURL)
	if err != nil {
		fatal("connect to database failed", "error", err)
	}
	defer pool.Close()

	if err := store.Migrate(ctx, pool); err != nil {
		fatal("migrate database failed", "error", err)
	}

	st := store.New(pool)

	tokenCache := webclient.NewTokenCache(cfg.TmpDir, "manager")
	webClient := webclient.NewClient(
		webBaseURL(cfg.WebServerIP, cfg.WebServerPort),
		cfg.WebAccount, cfg.WebPassword, tokenCache,
	)

	srv := &managerapi.Server{Store: st, WebClient: webClient}
	router := managerapi.NewRouter(srv)

	httpSrv := &http.Server{
		Addr:    managerListenAddr(cfg.ManagerPort),
		Handler: router,
	}
	go func() {
		if err := httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			fatal("manager http server failed", "error", err)
		}
	}()

	disp := dispatcher.New(st, cfg.ExecutorPort, 0)
	disp.Start(ctx)

	<-ctx.Done()

	disp.Stop()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return httpSrv.Shutdown(shutdownCtx)
}

func managerListenAddr(port int) string {
	return fmt.Sprintf(":%d", port)
}

func webBaseURL(ip string, port int) string {
	if port == 0 {
		return "http://" + ip
	}
	return fmt.Sprintf("http://%s:%d", ip, port)
}
