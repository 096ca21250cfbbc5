package main

import (
	"context"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"account_factory/internal/config"
	"account_factory/internal/httpapi"
	"account_factory/internal/logbus"
	"account_factory/internal/mailtm"
	"account_factory/internal/notify"
	"account_factory/internal/ratelimit"
	"account_factory/internal/signup"
	"account_factory/internal/store/sqlite"
	"account_factory/internal/worker"
)

func main() {
	configPath := flag.String("config", "./config.yaml", "path to config.yaml")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	bus := logbus.New(200)
	bus.Log("info", "server starting", map[string]any{"addr": cfg.Server.Addr})

	ctx := context.Background()
	store, err := sqlite.Open(ctx, cfg.Storage.SQLitePath)
	if err != nil {
		log.Fatalf("open sqlite: %v", err)
	}
	defer store.Close()

	mailbox := mailtm.New(cfg.Mailbox, cfg.Limits, bus)
	governor := ratelimit.NewGovernor(cfg.Limits.Cooldown())
	notifier := notify.NewEmailNotifier(store, bus)

	runner := worker.NewRunner(worker.Options{
		Store:          store,
		Mailbox:        mailbox,
		Registrar:      signup.NewSimulated(cfg.Signup),
		Governor:       governor,
		Bus:            bus,
		Notifier:       notifier,
		Provider:       cfg.Mailbox.Provider,
		MaxUnitRetries: cfg.Worker.MaxUnitRetries,
	})

	api := httpapi.New(httpapi.Options{
		Cfg:      cfg,
		Bus:      bus,
		Store:    store,
		Mailbox:  mailbox,
		Governor: governor,
		Runner:   runner,
	})

	server := &http.Server{
		Addr:              cfg.Server.Addr,
		Handler:           api.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	serverErr := make(chan error, 1)
	go func() {
		serverErr <- server.ListenAndServe()
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)

	select {
	case sig := <-stop:
		bus.Log("info", "shutdown signal received", map[string]any{"signal": sig.String()})
	case err := <-serverErr:
		if err != nil && err != http.ErrServerClosed {
			bus.Log("error", "http server error", map[string]any{"error": err.Error()})
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	_ = server.Shutdown(shutdownCtx)
	_ = notifier.Close(shutdownCtx)
	bus.Log("info", "server stopped", nil)
	bus.Close()
}
