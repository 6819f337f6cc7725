package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	api "github.com/chadiek/preapproval-line/api/http"
	"github.com/chadiek/preapproval-line/internal/archive"
	"github.com/chadiek/preapproval-line/internal/call"
	"github.com/chadiek/preapproval-line/internal/config"
	"github.com/chadiek/preapproval-line/internal/decision"
	"github.com/chadiek/preapproval-line/internal/email"
	"github.com/chadiek/preapproval-line/internal/httpserver"
	"github.com/chadiek/preapproval-line/internal/middleware"
	"github.com/chadiek/preapproval-line/internal/telephony"
	"github.com/chadiek/preapproval-line/internal/usecase"
)

func main() {
	// Include sub-second precision in all log timestamps
	log.SetFlags(log.Ldate | log.Ltime | log.Lmicroseconds)

	cfg := config.Load()

	emailer := email.NewMailerSendClient(cfg.MailerSendAPIKey, cfg.MailerSendFromEmail)
	solver := decision.NewClient(cfg.DecisionRulesAPIKey, cfg.DecisionRulesRuleID, cfg.DecisionRulesHost)
	forwarder := telephony.New(telephony.Config{
		AccountSID: cfg.TwilioAccountSID,
		AuthToken:  cfg.TwilioAuthToken,
	})

	var archiver call.Archiver
	if cfg.SupabaseURL != "" && cfg.SupabaseServiceRoleKey != "" {
		store, err := archive.New(archive.Config{
			URL:            cfg.SupabaseURL,
			ServiceRoleKey: cfg.SupabaseServiceRoleKey,
			Bucket:         cfg.SupabaseBucket,
		})
		if err != nil {
			log.Printf("transcript archive disabled: %v", err)
		} else {
			archiver = store
		}
	}

	app := usecase.NewApplicationService(solver, emailer)

	e := httpserver.New()
	e.Use(middleware.TwilioAuth(func() string { return cfg.TwilioAuthToken }, "/"))
	api.NewHandlers(cfg, app, emailer, forwarder, archiver).Register(e)

	server := &http.Server{
		Addr:              cfg.HTTPAddress,
		Handler:           e,
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	serverErrors := make(chan error, 1)
	go func() {
		log.Printf("server listening on %s", cfg.HTTPAddress)
		serverErrors <- server.ListenAndServe()
	}()

	// Graceful shutdown
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-serverErrors:
		if err != nil && err != http.ErrServerClosed {
			log.Fatalf("server error: %v", err)
		}
	case sig := <-sigChan:
		log.Printf("shutdown signal received: %v", sig)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		log.Printf("graceful shutdown failed: %v", err)
		_ = server.Close()
	}
}
