// Package app wires the configured modules together and runs the bot until
// the process is signalled.
package app

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/dreamtalk/dreamtalk/internal/bot"
	"github.com/dreamtalk/dreamtalk/internal/gateway"
	"github.com/dreamtalk/dreamtalk/internal/messaging"
	"github.com/dreamtalk/dreamtalk/internal/store"
	"github.com/dreamtalk/dreamtalk/internal/twiliowhatsapp"
	"github.com/dreamtalk/dreamtalk/internal/whatsapp"
)

// Transport names accepted by WithTransport.
const (
	TransportWhatsApp = "whatsapp"
	TransportTwilio   = "twilio"
)

// Opts holds application-level configuration.
type Opts struct {
	Transport   string // which messenger transport to run
	WebhookAddr string // listen address for the Twilio inbound webhook
}

// Option defines an application-level configuration option.
type Option func(*Opts)

// WithTransport selects the messenger transport ("whatsapp" or "twilio").
func WithTransport(transport string) Option {
	return func(o *Opts) { o.Transport = transport }
}

// WithWebhookAddr sets the listen address for the Twilio inbound webhook.
func WithWebhookAddr(addr string) Option {
	return func(o *Opts) { o.WebhookAddr = addr }
}

// Run builds the guest store, gateway client, and messenger transport from
// the given module options, then runs the bot until SIGINT/SIGTERM.
func Run(waOpts []whatsapp.Option, storeOpts []store.Option, gwOpts []gateway.Option, botOpts []bot.Option, opts ...Option) error {
	cfg := Opts{Transport: TransportWhatsApp}
	for _, opt := range opts {
		opt(&cfg)
	}

	guest, err := buildStore(storeOpts)
	if err != nil {
		return fmt.Errorf("failed to initialize guest store: %w", err)
	}
	defer guest.Close()

	backend, err := gateway.NewClient(gwOpts...)
	if err != nil {
		return fmt.Errorf("failed to initialize gateway client: %w", err)
	}

	svc, cleanup, err := buildTransport(cfg, waOpts)
	if err != nil {
		return err
	}
	if cleanup != nil {
		defer cleanup()
	}

	b := bot.New(svc, backend, guest, botOpts...)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	slog.Info("dreamtalk running", "transport", cfg.Transport)
	err = b.Run(ctx)
	if stopErr := svc.Stop(); stopErr != nil {
		slog.Error("Failed to stop messaging service", "error", stopErr)
	}
	if err == context.Canceled {
		return nil
	}
	return err
}

// buildStore picks the store implementation from the configured DSN,
// falling back to the in-memory store when none is set.
func buildStore(storeOpts []store.Option) (store.Store, error) {
	var cfg store.Opts
	for _, opt := range storeOpts {
		opt(&cfg)
	}
	if cfg.DSN == "" {
		slog.Debug("No guest store DSN configured, using in-memory store")
		return store.NewInMemoryStore(), nil
	}
	if store.DetectDSNType(cfg.DSN) == "postgres" {
		return store.NewPostgresStore(storeOpts...)
	}
	return store.NewSQLiteStore(storeOpts...)
}

// buildTransport constructs the configured messenger transport. For Twilio
// it also starts the inbound webhook server; the returned cleanup shuts it
// down.
func buildTransport(cfg Opts, waOpts []whatsapp.Option) (messaging.Service, func(), error) {
	switch cfg.Transport {
	case TransportWhatsApp:
		client, err := whatsapp.NewClient(waOpts...)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to initialize WhatsApp client: %w", err)
		}
		return messaging.NewWhatsAppService(client), nil, nil

	case TransportTwilio:
		client, err := twiliowhatsapp.NewClient()
		if err != nil {
			return nil, nil, fmt.Errorf("failed to initialize Twilio client: %w", err)
		}
		svc := messaging.NewTwilioService(client)

		addr := cfg.WebhookAddr
		if addr == "" {
			addr = ":8080"
		}
		mux := http.NewServeMux()
		mux.HandleFunc("/twilio/webhook", svc.WebhookHandler)
		server := &http.Server{Addr: addr, Handler: mux}
		go func() {
			slog.Info("Twilio webhook server listening", "addr", addr)
			if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				slog.Error("Twilio webhook server failed", "error", err)
			}
		}()
		cleanup := func() {
			if err := server.Shutdown(context.Background()); err != nil {
				slog.Error("Failed to shut down webhook server", "error", err)
			}
		}
		return svc, cleanup, nil

	default:
		return nil, nil, fmt.Errorf("unknown transport %q", cfg.Transport)
	}
}
