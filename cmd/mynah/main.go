package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/joho/godotenv"
	"github.com/lmittmann/tint"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"golang.org/x/sync/errgroup"

	"github.com/hrygo/mynah/ai"
	"github.com/hrygo/mynah/ai/google"
	"github.com/hrygo/mynah/ai/keypool"
	"github.com/hrygo/mynah/ai/media"
	"github.com/hrygo/mynah/ai/openai"
	"github.com/hrygo/mynah/ai/prompt"
	"github.com/hrygo/mynah/blacklist"
	"github.com/hrygo/mynah/bot"
	"github.com/hrygo/mynah/chatconfig"
	"github.com/hrygo/mynah/internal/profile"
	"github.com/hrygo/mynah/internal/version"
	"github.com/hrygo/mynah/metrics"
	"github.com/hrygo/mynah/server"
	"github.com/hrygo/mynah/store"
	"github.com/hrygo/mynah/store/db"
	"github.com/hrygo/mynah/telegram"
)

// exitRestart is the code the admin /restart command exits with, so a
// supervisor with Restart=on-failure brings the process back up.
const exitRestart = 1

var rootCmd = &cobra.Command{
	Use:   "mynah",
	Short: "A Telegram chat bot bridging group conversations to generative AI backends.",
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		// .env is a convenience for direct execution; process managers
		// inject the environment themselves.
		_ = godotenv.Load()
		return nil
	},
	Run: func(_ *cobra.Command, _ []string) {
		instanceProfile := &profile.Profile{
			Mode:    viper.GetString("mode"),
			Port:    viper.GetInt("port"),
			Data:    viper.GetString("data"),
			Driver:  viper.GetString("driver"),
			DSN:     viper.GetString("dsn"),
			Version: version.GetCurrentVersion(viper.GetString("mode")),
		}
		instanceProfile.FromEnv()
		if err := instanceProfile.Validate(); err != nil {
			fmt.Fprintf(os.Stderr, "invalid configuration: %v\n", err)
			os.Exit(1)
		}

		setupLogging(instanceProfile)

		if err := run(instanceProfile); err != nil {
			if errors.Is(err, errRestartRequested) {
				slog.Warn("restarting on admin request")
				os.Exit(exitRestart)
			}
			slog.Error("bot terminated", "error", err)
			os.Exit(1)
		}
	},
}

// errRestartRequested marks the shutdown triggered by the /restart command.
var errRestartRequested = errors.New("restart requested")

func run(p *profile.Profile) error {
	ctx, stop := signal.NotifyContext(context.Background(), terminationSignals...)
	defer stop()

	dbDriver, err := db.NewDBDriver(p)
	if err != nil {
		printDatabaseError(err, p)
		return fmt.Errorf("failed to create db driver: %w", err)
	}

	st := store.New(dbDriver, p)
	defer st.Close()
	if err := st.Migrate(ctx, chatconfig.Columns()); err != nil {
		return fmt.Errorf("failed to migrate: %w", err)
	}

	tg, err := telegram.New(p.BotToken, p.BotUsername, p.BotID, p.ProxyURL)
	if err != nil {
		return err
	}

	keys, err := keypool.Load(p.KeyFilePath(), keypool.Options{
		Notify: func(message string) {
			notifyAdmins(tg, p, message)
		},
	})
	if err != nil {
		return fmt.Errorf("failed to load key file: %w", err)
	}

	systemPrompt, err := os.ReadFile(p.SystemPromptPath())
	if err != nil {
		return fmt.Errorf("failed to read system prompt: %w", err)
	}

	backendClient, err := telegram.NewHTTPClient(p.ProxyURL, 300*time.Second)
	if err != nil {
		return err
	}
	var groundingClient *http.Client
	if p.GroundingProxyURL != "" {
		if groundingClient, err = telegram.NewHTTPClient(p.GroundingProxyURL, 300*time.Second); err != nil {
			return err
		}
	}

	backends := map[string]ai.Backend{
		"google": google.New(keys, backendClient, groundingClient),
	}
	if p.OAIEnabled {
		backends["openai"] = openai.New(openai.Defaults{
			BaseURL: p.OAIAPIURL,
			APIKey:  p.OAIAPIKey,
		})
	}

	m := metrics.New()
	config := chatconfig.New(st, chatconfig.NewSealer(p.BotToken))

	restartCtx, requestRestart := context.WithCancel(ctx)
	defer requestRestart()

	b := bot.New(bot.Options{
		Profile:   p,
		Store:     st,
		Config:    config,
		Blacklist: blacklist.New(st),
		Keys:      keys,
		Telegram:  tg,
		Media:     media.New(p.Cache, tg, backendClient),
		Assembler: prompt.New(string(systemPrompt)),
		Metrics:   m,
		Backends:  backends,
	}, requestRestart)

	srv := server.NewServer(p, st, m)

	printGreetings(p, keys.Snapshot())

	g, gctx := errgroup.WithContext(restartCtx)
	g.Go(func() error {
		return b.Run(gctx)
	})
	g.Go(func() error {
		if err := srv.Start(gctx); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		srv.Shutdown(context.Background())
		return nil
	})

	err = g.Wait()
	if restartCtx.Err() != nil && ctx.Err() == nil {
		return errRestartRequested
	}
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

// setupLogging points slog at tinted stderr in dev mode and at a JSON log
// file in prod, falling back to stderr when no logs directory is set.
func setupLogging(p *profile.Profile) {
	level := slog.LevelInfo
	if p.IsDev() {
		level = slog.LevelDebug
	}

	var handler slog.Handler
	switch {
	case p.IsDev():
		handler = tint.NewHandler(os.Stderr, &tint.Options{
			Level:      level,
			TimeFormat: time.Kitchen,
		})
	case p.Logs != "":
		f, err := os.OpenFile(filepath.Join(p.Logs, "mynah.log"),
			os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			fmt.Fprintf(os.Stderr, "failed to open log file: %v\n", err)
			handler = slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: level})
			break
		}
		handler = slog.NewJSONHandler(f, &slog.HandlerOptions{Level: level})
	default:
		handler = slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: level})
	}

	instanceID := strings.Split(uuid.NewString(), "-")[0]
	slog.SetDefault(slog.New(handler).With("instance", instanceID))
}

// notifyAdmins pushes a key pool notification to every global admin.
func notifyAdmins(tg *telegram.Client, p *profile.Profile, message string) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	for _, adminID := range p.AdminIDs {
		if _, err := tg.Send(ctx, adminID, "🔑 "+message, ""); err != nil {
			slog.Warn("failed to notify admin", "admin_id", adminID, "error", err)
		}
	}
}

func printGreetings(p *profile.Profile, snap keypool.Snapshot) {
	fmt.Printf("Mynah %s started as @%s\n", p.Version, p.BotUsername)
	fmt.Printf("Mode: %s\n", p.Mode)
	fmt.Printf("Data directory: %s\n", p.Data)
	fmt.Printf("Database driver: %s\n", p.Driver)
	fmt.Printf("API keys: %d active (%d billing-enabled)\n", snap.Active, snap.ActiveBilling)
	fmt.Printf("Ops server on port %d\n", p.Port)
	if p.OAIEnabled {
		fmt.Println("OpenAI-compatible endpoint enabled")
	}
}

// printDatabaseError gives the common connection failures an actionable
// message before the process exits.
func printDatabaseError(err error, p *profile.Profile) {
	fmt.Fprintln(os.Stderr, "\ndatabase connection failed")

	errMsg := err.Error()
	switch {
	case strings.Contains(errMsg, "connection refused") || strings.Contains(errMsg, "no such host"):
		fmt.Fprintln(os.Stderr, "PostgreSQL is not reachable. Start it, or run with --driver=sqlite for local use.")
	case strings.Contains(errMsg, "SSL is not enabled") || strings.Contains(errMsg, "sslmode"):
		fmt.Fprintln(os.Stderr, "SSL mismatch. Add ?sslmode=disable to the DSN if your server has no TLS.")
	case strings.Contains(errMsg, "password authentication failed"):
		fmt.Fprintln(os.Stderr, "Authentication failed. Check POSTGRES_USER / POSTGRES_PASSWORD or the DSN.")
	case strings.Contains(errMsg, "does not exist"):
		fmt.Fprintf(os.Stderr, "Database missing. Create it: CREATE DATABASE %s;\n", p.PostgresUser)
	default:
		fmt.Fprintln(os.Stderr, errMsg)
	}

	if _, statErr := os.Stat(".env"); statErr != nil {
		fmt.Fprintln(os.Stderr, "Tip: a .env file in the working directory is loaded automatically.")
	}
}

func init() {
	viper.SetDefault("mode", "dev")
	viper.SetDefault("driver", "sqlite")
	viper.SetDefault("port", 28090)
	viper.SetDefault("data", "data")

	rootCmd.PersistentFlags().String("mode", "dev", `mode of the bot, "prod" or "dev"`)
	rootCmd.PersistentFlags().Int("port", 28090, "port of the ops HTTP server")
	rootCmd.PersistentFlags().String("data", "data", "data directory")
	rootCmd.PersistentFlags().String("driver", "sqlite", "database driver (postgres, sqlite)")
	rootCmd.PersistentFlags().String("dsn", "", "database source name (aka. DSN)")

	for _, flag := range []string{"mode", "port", "data", "driver", "dsn"} {
		if err := viper.BindPFlag(flag, rootCmd.PersistentFlags().Lookup(flag)); err != nil {
			panic(err)
		}
	}

	viper.SetEnvPrefix("mynah")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	viper.AutomaticEnv()
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		panic(err)
	}
}
