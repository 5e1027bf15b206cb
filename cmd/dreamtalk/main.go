package main

import (
	"flag"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/dreamtalk/dreamtalk/internal/app"
	"github.com/dreamtalk/dreamtalk/internal/bot"
	"github.com/dreamtalk/dreamtalk/internal/gateway"
	"github.com/dreamtalk/dreamtalk/internal/store"
	"github.com/dreamtalk/dreamtalk/internal/whatsapp"
	"github.com/joho/godotenv"
)

// Default configuration constants
const (
	// DefaultStateDir is the default directory for dreamtalk state data
	DefaultStateDir = "/var/lib/dreamtalk"
	// DefaultDBFileName is the default SQLite database filename
	DefaultDBFileName = "dreamtalk.db"
)

func main() {
	// Initialize structured logger
	initializeLogger()

	// Load environment configuration
	config := loadEnvironmentConfig()

	// Parse command line flags
	flags := parseCommandLineFlags(config)

	// Ensure required directories exist
	if err := ensureDirectoriesExist(flags); err != nil {
		slog.Error("Failed to create required directories", "error", err)
		os.Exit(1)
	}

	// Build module options
	waOpts := buildWhatsAppOptions(flags)
	storeOpts := buildStoreOptions(flags)
	gwOpts := buildGatewayOptions(flags)
	botOpts := buildBotOptions(flags)
	appOpts := buildAppOptions(flags)

	// Start the service
	slog.Info("Bootstrapping dreamtalk with configured modules")
	slog.Debug("Module options counts", "whatsapp", len(waOpts), "store", len(storeOpts), "gateway", len(gwOpts), "bot", len(botOpts))
	slog.Debug("Final configuration", "state_dir", *flags.stateDir, "dsn_set", *flags.dbDSN != "", "transport", *flags.transport)
	if err := app.Run(waOpts, storeOpts, gwOpts, botOpts, appOpts...); err != nil {
		slog.Error("dreamtalk failed to run", "error", err)
		os.Exit(1)
	}
	slog.Info("dreamtalk exited successfully")
}

// Config holds environment configuration
type Config struct {
	WhatsAppDSN   string
	DatabaseURL   string
	StateDir      string
	GatewayURL    string
	Transport     string
	WebhookAddr   string
	SupportAmount string
}

// Flags holds command line flag values
type Flags struct {
	qrOutput      *string
	numeric       *bool
	stateDir      *string
	dbDSN         *string
	gatewayURL    *string
	transport     *string
	webhookAddr   *string
	supportAmount *string
}

// initializeLogger sets up structured logging with debug level
func initializeLogger() {
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelDebug}))
	slog.SetDefault(logger)
}

// loadEnvironmentConfig loads configuration from environment variables and .env file
func loadEnvironmentConfig() Config {
	if err := godotenv.Load(); err != nil {
		slog.Debug("failed to load .env file", "error", err)
	} else {
		slog.Debug("successfully loaded .env file")
	}

	config := Config{
		WhatsAppDSN:   os.Getenv("WHATSAPP_DB_DSN"),
		DatabaseURL:   os.Getenv("DATABASE_URL"),
		StateDir:      os.Getenv("DREAMTALK_STATE_DIR"),
		GatewayURL:    os.Getenv("GATEWAY_URL"),
		Transport:     os.Getenv("TRANSPORT"),
		WebhookAddr:   os.Getenv("WEBHOOK_ADDR"),
		SupportAmount: os.Getenv("SUPPORT_AMOUNT"),
	}

	// Set default state directory if not specified
	if config.StateDir == "" {
		config.StateDir = DefaultStateDir
		slog.Debug("No DREAMTALK_STATE_DIR set, using default", "default_state_dir", config.StateDir)
	} else {
		slog.Debug("DREAMTALK_STATE_DIR found in environment", "state_dir", config.StateDir)
	}

	// Default to WhatsApp DSN if specific not set
	if config.WhatsAppDSN == "" {
		config.WhatsAppDSN = config.DatabaseURL
		if config.DatabaseURL != "" {
			slog.Debug("Using DATABASE_URL as WHATSAPP_DB_DSN", "dsn_set", true)
		}
	}

	// If no database URL is provided, default to SQLite in the state directory
	if config.WhatsAppDSN == "" {
		config.WhatsAppDSN = filepath.Join(config.StateDir, DefaultDBFileName)
		slog.Debug("No database DSN provided, defaulting to SQLite", "sqlite_path", config.WhatsAppDSN)
	}

	slog.Debug("environment variables loaded",
		"WHATSAPP_DB_DSN_SET", config.WhatsAppDSN != "",
		"DATABASE_URL_SET", config.DatabaseURL != "",
		"DREAMTALK_STATE_DIR", config.StateDir,
		"GATEWAY_URL_SET", config.GatewayURL != "",
		"TRANSPORT", config.Transport,
		"WEBHOOK_ADDR", config.WebhookAddr,
		"SUPPORT_AMOUNT", config.SupportAmount)

	return config
}

// parseCommandLineFlags parses command line arguments with environment defaults
func parseCommandLineFlags(config Config) Flags {
	flags := Flags{
		qrOutput:      flag.String("qr-output", "", "path to write login QR code"),
		numeric:       flag.Bool("numeric-code", false, "use numeric login code instead of QR code"),
		stateDir:      flag.String("state-dir", config.StateDir, "state directory for dreamtalk data (overrides $DREAMTALK_STATE_DIR)"),
		dbDSN:         flag.String("db-dsn", config.WhatsAppDSN, "database DSN for WhatsApp and the guest store (overrides $WHATSAPP_DB_DSN or $DATABASE_URL)"),
		gatewayURL:    flag.String("gateway-url", config.GatewayURL, "base URL of the dream-interpretation backend (overrides $GATEWAY_URL)"),
		transport:     flag.String("transport", config.Transport, "messenger transport: whatsapp or twilio (overrides $TRANSPORT)"),
		webhookAddr:   flag.String("webhook-addr", config.WebhookAddr, "listen address for the Twilio inbound webhook (overrides $WEBHOOK_ADDR)"),
		supportAmount: flag.String("support-amount", config.SupportAmount, "donation amount in rubles (overrides $SUPPORT_AMOUNT)"),
	}

	flag.Parse()

	slog.Debug("flags parsed",
		"qrOutput", *flags.qrOutput,
		"numeric", *flags.numeric,
		"stateDir", *flags.stateDir,
		"dbDSN_set", *flags.dbDSN != "",
		"gatewayURL_set", *flags.gatewayURL != "",
		"transport", *flags.transport,
		"webhookAddr", *flags.webhookAddr,
		"supportAmount", *flags.supportAmount)

	// Update database DSN if not explicitly set but state directory is provided
	if *flags.dbDSN == config.WhatsAppDSN && config.WhatsAppDSN == filepath.Join(config.StateDir, DefaultDBFileName) && *flags.stateDir != config.StateDir {
		*flags.dbDSN = filepath.Join(*flags.stateDir, DefaultDBFileName)
		slog.Debug("Updated dbDSN based on state directory", "dsn_updated", true, "old_state_dir", config.StateDir, "new_state_dir", *flags.stateDir)
	}

	return flags
}

// ensureDirectoriesExist creates necessary directories for file-based storage
func ensureDirectoriesExist(flags Flags) error {
	// Ensure state directory exists if we're using a file-based DSN
	if !strings.Contains(*flags.dbDSN, "postgres://") && !strings.Contains(*flags.dbDSN, "host=") {
		stateDir := filepath.Dir(*flags.dbDSN)
		slog.Debug("Creating state directory for file-based database", "state_dir", stateDir)
		if err := os.MkdirAll(stateDir, 0755); err != nil {
			slog.Error("Failed to create state directory", "error", err, "state_dir", stateDir)
			return err
		}
		slog.Debug("State directory created successfully", "state_dir", stateDir)
	}
	return nil
}

// buildWhatsAppOptions constructs WhatsApp configuration options
func buildWhatsAppOptions(flags Flags) []whatsapp.Option {
	var waOpts []whatsapp.Option
	if *flags.qrOutput != "" {
		waOpts = append(waOpts, whatsapp.WithQRCodeOutput(*flags.qrOutput))
	}
	if *flags.numeric {
		waOpts = append(waOpts, whatsapp.WithNumericCode())
	}
	if *flags.dbDSN != "" {
		waOpts = append(waOpts, whatsapp.WithDBDSN(*flags.dbDSN))
	}
	return waOpts
}

// buildStoreOptions constructs guest store configuration options
func buildStoreOptions(flags Flags) []store.Option {
	var storeOpts []store.Option
	if *flags.dbDSN != "" {
		// Check if it's a PostgreSQL DSN using the shared detection function
		if store.DetectDSNType(*flags.dbDSN) == "postgres" {
			slog.Debug("Detected PostgreSQL DSN, configuring PostgreSQL store", "dsn_type", "postgresql", "dsn_set", true)
			storeOpts = append(storeOpts, store.WithPostgresDSN(*flags.dbDSN))
		} else {
			// Assume SQLite for file paths
			slog.Debug("Detected SQLite DSN, configuring SQLite store", "dsn_type", "sqlite", "db_path", *flags.dbDSN)
			storeOpts = append(storeOpts, store.WithSQLiteDSN(*flags.dbDSN))
		}
	} else {
		slog.Debug("No database DSN provided, will use in-memory store")
	}
	return storeOpts
}

// buildGatewayOptions constructs backend gateway configuration options
func buildGatewayOptions(flags Flags) []gateway.Option {
	var gwOpts []gateway.Option
	if *flags.gatewayURL != "" {
		gwOpts = append(gwOpts, gateway.WithBaseURL(*flags.gatewayURL))
	}
	return gwOpts
}

// buildBotOptions constructs bot configuration options
func buildBotOptions(flags Flags) []bot.Option {
	var botOpts []bot.Option
	if *flags.supportAmount != "" {
		amount, err := strconv.ParseFloat(*flags.supportAmount, 64)
		if err != nil || amount <= 0 {
			slog.Warn("Ignoring invalid support amount", "value", *flags.supportAmount)
		} else {
			botOpts = append(botOpts, bot.WithSupportAmount(amount))
		}
	}
	return botOpts
}

// buildAppOptions constructs application-level options
func buildAppOptions(flags Flags) []app.Option {
	var appOpts []app.Option
	if *flags.transport != "" {
		appOpts = append(appOpts, app.WithTransport(*flags.transport))
	}
	if *flags.webhookAddr != "" {
		appOpts = append(appOpts, app.WithWebhookAddr(*flags.webhookAddr))
	}
	return appOpts
}
