package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/BTreeMap/SurveyPipe/internal/api"
	"github.com/BTreeMap/SurveyPipe/internal/catalog"
	"github.com/BTreeMap/SurveyPipe/internal/delivery"
	"github.com/BTreeMap/SurveyPipe/internal/flow"
	"github.com/BTreeMap/SurveyPipe/internal/lockfile"
	"github.com/BTreeMap/SurveyPipe/internal/messaging"
	"github.com/BTreeMap/SurveyPipe/internal/scheduler"
	"github.com/BTreeMap/SurveyPipe/internal/session"
	"github.com/BTreeMap/SurveyPipe/internal/surveyapi"
	"github.com/BTreeMap/SurveyPipe/internal/twiliowhatsapp"
	"github.com/BTreeMap/SurveyPipe/internal/util"
	"github.com/BTreeMap/SurveyPipe/internal/whatsapp"
)

// Default configuration constants
const (
	// DefaultStateDir is the default directory for SurveyPipe state data
	DefaultStateDir = "/var/lib/surveypipe"
	// DefaultSessionDBFileName is the default SQLite database filename for sessions
	DefaultSessionDBFileName = "surveypipe.db"
	// DefaultWhatsAppDBFileName is the default SQLite database filename for the WhatsApp device store
	DefaultWhatsAppDBFileName = "whatsapp.db"
	// DefaultSweepInterval is how often the in-memory session store reclaims expired sessions
	DefaultSweepInterval = 5 * time.Minute
)

func main() {
	initializeLogger()

	config := loadEnvironmentConfig()
	flags := parseCommandLineFlags(config)

	if err := os.MkdirAll(*flags.stateDir, 0755); err != nil {
		slog.Error("Failed to create state directory", "error", err, "state_dir", *flags.stateDir)
		os.Exit(1)
	}

	lock, err := lockfile.AcquireLock(*flags.stateDir)
	if err != nil {
		slog.Error("Failed to acquire state directory lock", "error", err)
		os.Exit(1)
	}
	defer lock.Release()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, config, flags); err != nil {
		slog.Error("SurveyPipe failed to run", "error", err)
		os.Exit(1)
	}
	slog.Info("SurveyPipe exited successfully")
}

func run(ctx context.Context, config Config, flags Flags) error {
	sessions, err := buildSessionStore(ctx, flags)
	if err != nil {
		return err
	}

	questions, answers, authority, err := buildCatalog(ctx, config, flags)
	if err != nil {
		return err
	}

	svc, twilioSvc, err := buildMessagingService(config, flags)
	if err != nil {
		return err
	}
	if err := svc.Start(ctx); err != nil {
		return err
	}
	defer svc.Stop()

	sender := delivery.NewSender(svc)
	resolver := flow.NewResolver(authority, questions)
	coordinator := flow.NewCoordinator(sessions, resolver, questions, answers, sender, svc)

	dispatcher := messaging.NewDispatcher(svc, coordinator, *flags.defaultSurvey)
	go dispatcher.Run(ctx)

	sched := scheduler.NewScheduler()
	defer sched.Stop()
	if config.InviteCron != "" && len(config.InviteRecipients) > 0 {
		if err := sched.ScheduleInvites(config.InviteCron, svc, config.InviteRecipients, config.InviteMessage); err != nil {
			return err
		}
	}

	apiOpts := []api.Option{api.WithAddr(*flags.apiAddr)}
	if twilioSvc != nil {
		apiOpts = append(apiOpts, api.WithResponseInjector(twilioSvc))
	}
	server := api.NewServer(sessions, apiOpts...)

	slog.Info("SurveyPipe started",
		"state_dir", *flags.stateDir,
		"session_store", session.DetectDSNType(*flags.sessionDSN),
		"messaging_backend", config.MessagingBackend,
		"default_survey", *flags.defaultSurvey)
	return server.Run(ctx)
}

// Config holds environment configuration
type Config struct {
	StateDir         string
	SessionDSN       string
	WhatsAppDSN      string
	SurveyAPIURL     string
	SurveyAPIToken   string
	MongoURI         string
	MongoDatabase    string
	MessagingBackend string
	DefaultSurveyID  string
	APIAddr          string
	InviteCron       string
	InviteRecipients []string
	InviteMessage    string
	SweepInterval    time.Duration
}

// Flags holds command line flag values
type Flags struct {
	qrOutput      *string
	numeric       *bool
	stateDir      *string
	sessionDSN    *string
	whatsappDSN   *string
	surveyAPIURL  *string
	defaultSurvey *string
	apiAddr       *string
}

// initializeLogger sets up structured logging
func initializeLogger() {
	level := slog.LevelInfo
	if util.ParseBoolEnv("SURVEYPIPE_DEBUG", false) {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: level}))
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
		StateDir:         os.Getenv("SURVEYPIPE_STATE_DIR"),
		SessionDSN:       os.Getenv("SESSION_DB_DSN"),
		WhatsAppDSN:      os.Getenv("WHATSAPP_DB_DSN"),
		SurveyAPIURL:     os.Getenv("SURVEY_API_URL"),
		SurveyAPIToken:   os.Getenv("SURVEY_API_TOKEN"),
		MongoURI:         os.Getenv("MONGO_URI"),
		MongoDatabase:    os.Getenv("MONGO_DATABASE"),
		MessagingBackend: os.Getenv("MESSAGING_BACKEND"),
		DefaultSurveyID:  os.Getenv("DEFAULT_SURVEY_ID"),
		APIAddr:          os.Getenv("API_ADDR"),
		InviteCron:       os.Getenv("INVITE_CRON"),
		InviteMessage:    os.Getenv("INVITE_MESSAGE"),
		SweepInterval:    util.ParseDurationEnv("SESSION_SWEEP_INTERVAL", DefaultSweepInterval),
	}

	if config.StateDir == "" {
		config.StateDir = DefaultStateDir
		slog.Debug("No SURVEYPIPE_STATE_DIR set, using default", "default_state_dir", config.StateDir)
	}
	if config.SessionDSN == "" {
		config.SessionDSN = os.Getenv("DATABASE_URL")
	}
	if config.MessagingBackend == "" {
		config.MessagingBackend = "whatsapp"
	}
	if recipients := os.Getenv("INVITE_RECIPIENTS"); recipients != "" {
		for _, r := range strings.Split(recipients, ",") {
			if r = strings.TrimSpace(r); r != "" {
				config.InviteRecipients = append(config.InviteRecipients, r)
			}
		}
	}

	slog.Debug("environment variables loaded",
		"SURVEYPIPE_STATE_DIR", config.StateDir,
		"SESSION_DB_DSN_SET", config.SessionDSN != "",
		"WHATSAPP_DB_DSN_SET", config.WhatsAppDSN != "",
		"SURVEY_API_URL", config.SurveyAPIURL,
		"MONGO_URI_SET", config.MongoURI != "",
		"MESSAGING_BACKEND", config.MessagingBackend,
		"DEFAULT_SURVEY_ID", config.DefaultSurveyID,
		"API_ADDR", config.APIAddr,
		"INVITE_CRON", config.InviteCron,
		"invite_recipients", len(config.InviteRecipients))

	return config
}

// parseCommandLineFlags parses command line arguments with environment defaults
func parseCommandLineFlags(config Config) Flags {
	flags := Flags{
		qrOutput:      flag.String("qr-output", "", "path to write login QR code"),
		numeric:       flag.Bool("numeric-code", false, "use numeric login code instead of QR code"),
		stateDir:      flag.String("state-dir", config.StateDir, "state directory for SurveyPipe data (overrides $SURVEYPIPE_STATE_DIR)"),
		sessionDSN:    flag.String("session-dsn", config.SessionDSN, "session store DSN: SQLite path, postgres://, or redis:// (overrides $SESSION_DB_DSN or $DATABASE_URL)"),
		whatsappDSN:   flag.String("whatsapp-dsn", config.WhatsAppDSN, "WhatsApp device store DSN (overrides $WHATSAPP_DB_DSN)"),
		surveyAPIURL:  flag.String("survey-api-url", config.SurveyAPIURL, "survey platform base URL (overrides $SURVEY_API_URL)"),
		defaultSurvey: flag.String("default-survey", config.DefaultSurveyID, "survey started by a bare /start command (overrides $DEFAULT_SURVEY_ID)"),
		apiAddr:       flag.String("api-addr", config.APIAddr, "API server address (overrides $API_ADDR)"),
	}

	flag.Parse()

	if *flags.whatsappDSN == "" {
		*flags.whatsappDSN = filepath.Join(*flags.stateDir, DefaultWhatsAppDBFileName)
	}

	slog.Debug("flags parsed",
		"qrOutput", *flags.qrOutput,
		"numeric", *flags.numeric,
		"stateDir", *flags.stateDir,
		"sessionDSN_set", *flags.sessionDSN != "",
		"whatsappDSN_set", *flags.whatsappDSN != "",
		"surveyAPIURL", *flags.surveyAPIURL,
		"defaultSurvey", *flags.defaultSurvey,
		"apiAddr", *flags.apiAddr)

	return flags
}

// buildSessionStore selects the session store backend from the DSN. An
// empty DSN falls back to the in-memory store with a background sweeper.
func buildSessionStore(ctx context.Context, flags Flags) (session.Store, error) {
	dsn := *flags.sessionDSN
	if dsn == "" {
		slog.Info("No session DSN provided, using in-memory session store")
		mem := session.NewInMemoryStore()
		mem.StartSweeper(ctx, util.ParseDurationEnv("SESSION_SWEEP_INTERVAL", DefaultSweepInterval))
		return mem, nil
	}
	var (
		store session.Store
		err   error
	)
	switch session.DetectDSNType(dsn) {
	case "postgres":
		slog.Debug("Detected PostgreSQL DSN, configuring PostgreSQL session store")
		store, err = session.NewPostgresStore(session.WithDSN(dsn))
	case "redis":
		slog.Debug("Detected Redis DSN, configuring Redis session store")
		store, err = session.NewRedisStore(session.WithDSN(dsn))
	default:
		slog.Debug("Detected SQLite DSN, configuring SQLite session store", "db_path", dsn)
		store, err = session.NewSQLiteStore(session.WithDSN(dsn))
	}
	return store, err
}

// buildCatalog selects the survey catalog backend. A Mongo URI selects
// the self-hosted catalog; otherwise the remote survey platform is used.
func buildCatalog(ctx context.Context, config Config, flags Flags) (flow.QuestionCatalog, flow.AnswerStore, flow.FlowAuthority, error) {
	if config.MongoURI != "" {
		cat, err := catalog.NewMongoCatalog(ctx, config.MongoURI, config.MongoDatabase)
		if err != nil {
			return nil, nil, nil, err
		}
		return cat, cat, cat, nil
	}
	client, err := surveyapi.NewClient(
		surveyapi.WithBaseURL(*flags.surveyAPIURL),
		surveyapi.WithAPIToken(config.SurveyAPIToken),
	)
	if err != nil {
		return nil, nil, nil, err
	}
	return client, client, client, nil
}

// buildMessagingService constructs the configured messaging backend. The
// second return value is non-nil only for Twilio, whose inbound messages
// arrive via the webhook endpoint.
func buildMessagingService(config Config, flags Flags) (messaging.Service, *messaging.TwilioService, error) {
	if config.MessagingBackend == "twilio" {
		client, err := twiliowhatsapp.NewClient()
		if err != nil {
			return nil, nil, err
		}
		svc := messaging.NewTwilioService(client)
		return svc, svc, nil
	}

	waOpts := []whatsapp.Option{whatsapp.WithDBDSN(*flags.whatsappDSN)}
	if *flags.qrOutput != "" {
		waOpts = append(waOpts, whatsapp.WithQRCodeOutput(*flags.qrOutput))
	}
	if *flags.numeric {
		waOpts = append(waOpts, whatsapp.WithNumericCode())
	}
	client, err := whatsapp.NewClient(waOpts...)
	if err != nil {
		return nil, nil, err
	}
	return messaging.NewWhatsAppService(client), nil, nil
}
