package profile

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/pkg/errors"
)

// Profile is configuration to start the bot process.
type Profile struct {
	// Telegram platform configuration
	BotToken    string // Telegram bot token; the numeric prefix is the bot id
	BotID       int64  // derived from BotToken
	BotUsername string // without the leading @

	// Directories
	Data  string // key file and system prompt live here
	Cache string // downloaded media cache
	Logs  string // log files in prod mode

	// Database configuration
	Driver           string // "postgres" or "sqlite"
	DSN              string // assembled from POSTGRES_* when empty
	PostgresUser     string
	PostgresPassword string
	PostgresHost     string // host or host:port
	PoolMinConns     int
	PoolMaxConns     int

	// Access control
	AdminIDs         []int64 // global administrators
	FeedbackTargetID int64   // chat receiving /feedback relays

	// OpenAI-compatible backend defaults (per-chat o_url/o_key override these)
	OAIEnabled bool
	OAIAPIURL  string
	OAIAPIKey  string

	// Optional proxies
	ProxyURL          string // platform + backend traffic
	GroundingProxyURL string // grounding generations only

	// Process
	Mode    string // "prod" or "dev"
	Port    int    // ops HTTP server port
	Version string
}

func (p *Profile) IsDev() bool {
	return p.Mode != "prod"
}

// IsAdmin reports whether the user id is a global administrator.
func (p *Profile) IsAdmin(userID int64) bool {
	for _, id := range p.AdminIDs {
		if id == userID {
			return true
		}
	}
	return false
}

// KeyFilePath is the Google API key file inside the data directory.
func (p *Profile) KeyFilePath() string {
	return filepath.Join(p.Data, "keys.txt")
}

// SystemPromptPath is the system prompt template inside the data directory.
func (p *Profile) SystemPromptPath() string {
	return filepath.Join(p.Data, "system_prompt.txt")
}

// getEnvOrDefault returns environment variable value or default value.
func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvOrDefaultInt returns environment variable value as int or default value.
func getEnvOrDefaultInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

// FromEnv loads configuration from environment variables.
func (p *Profile) FromEnv() {
	p.BotToken = getEnvOrDefault("TELEGRAM_TOKEN", "")
	p.BotUsername = strings.TrimPrefix(getEnvOrDefault("BOT_USERNAME", ""), "@")

	p.Data = getEnvOrDefault("DATA_PATH", p.Data)
	p.Cache = getEnvOrDefault("CACHE_PATH", "")
	p.Logs = getEnvOrDefault("LOGS_PATH", "")

	p.PostgresUser = getEnvOrDefault("POSTGRES_USER", "")
	p.PostgresPassword = getEnvOrDefault("POSTGRES_PASSWORD", "")
	p.PostgresHost = getEnvOrDefault("POSTGRES_HOST", "localhost")
	p.PoolMinConns = getEnvOrDefaultInt("POSTGRES_POOL_MIN_CONNECTIONS", 1)
	p.PoolMaxConns = getEnvOrDefaultInt("POSTGRES_POOL_MAX_CONNECTIONS", 10)

	p.AdminIDs = parseIDList(getEnvOrDefault("ADMIN_IDS", ""))
	p.FeedbackTargetID, _ = strconv.ParseInt(getEnvOrDefault("FEEDBACK_TARGET_ID", "0"), 10, 64)

	p.OAIEnabled = getEnvOrDefault("OAI_ENABLED", "false") == "true"
	p.OAIAPIURL = getEnvOrDefault("OAI_API_URL", "")
	p.OAIAPIKey = getEnvOrDefault("OAI_API_KEY", "")

	p.ProxyURL = getEnvOrDefault("PROXY_URL", "")
	p.GroundingProxyURL = getEnvOrDefault("GROUNDING_PROXY_URL", "")
}

// parseIDList parses a comma-separated list of numeric ids, skipping blanks.
func parseIDList(raw string) []int64 {
	var ids []int64
	for _, part := range strings.Split(raw, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		if id, err := strconv.ParseInt(part, 10, 64); err == nil {
			ids = append(ids, id)
		}
	}
	return ids
}

func checkDataDir(dataDir string) (string, error) {
	// Convert to absolute path if relative path is supplied.
	if !filepath.IsAbs(dataDir) {
		relativeDir := filepath.Join(filepath.Dir(os.Args[0]), dataDir)
		absDir, err := filepath.Abs(relativeDir)
		if err != nil {
			return "", err
		}
		dataDir = absDir
	}

	// Trim trailing \ or / in case user supplies
	dataDir = strings.TrimRight(dataDir, "\\/")
	if _, err := os.Stat(dataDir); err != nil {
		return "", errors.Wrapf(err, "unable to access data folder %s", dataDir)
	}
	return dataDir, nil
}

func (p *Profile) Validate() error {
	if p.Mode != "dev" && p.Mode != "prod" {
		p.Mode = "dev"
	}

	if p.BotToken == "" {
		return errors.New("TELEGRAM_TOKEN is required")
	}
	botID, ok := botIDFromToken(p.BotToken)
	if !ok {
		return errors.Errorf("TELEGRAM_TOKEN has no numeric bot id prefix")
	}
	p.BotID = botID

	if p.BotUsername == "" {
		return errors.New("BOT_USERNAME is required")
	}

	if p.Data == "" {
		p.Data = "data"
	}
	dataDir, err := checkDataDir(p.Data)
	if err != nil {
		return err
	}
	p.Data = dataDir

	if p.Cache == "" {
		p.Cache = filepath.Join(p.Data, "cache")
	}
	if err := os.MkdirAll(p.Cache, 0o755); err != nil {
		return errors.Wrapf(err, "unable to create cache folder %s", p.Cache)
	}
	if p.Logs != "" {
		if err := os.MkdirAll(p.Logs, 0o755); err != nil {
			return errors.Wrapf(err, "unable to create logs folder %s", p.Logs)
		}
	}

	if p.Driver != "postgres" && p.Driver != "sqlite" {
		return errors.Errorf("unsupported database driver %q", p.Driver)
	}
	if p.Driver == "sqlite" && p.DSN == "" {
		p.DSN = filepath.Join(p.Data, fmt.Sprintf("mynah_%s.db", p.Mode))
	}
	if p.Driver == "postgres" && p.DSN == "" {
		if p.PostgresUser == "" {
			return errors.New("POSTGRES_USER is required when no DSN is given")
		}
		p.DSN = p.postgresDSN()
	}

	return nil
}

// postgresDSN assembles a lib/pq connection URL from the POSTGRES_* variables.
// The database name defaults to the user name, matching libpq behaviour.
func (p *Profile) postgresDSN() string {
	u := url.URL{
		Scheme: "postgres",
		User:   url.UserPassword(p.PostgresUser, p.PostgresPassword),
		Host:   p.PostgresHost,
		Path:   "/" + p.PostgresUser,
	}
	q := u.Query()
	q.Set("sslmode", "disable")
	u.RawQuery = q.Encode()
	return u.String()
}

// botIDFromToken extracts the numeric prefix of a Telegram bot token
// ("123456:ABC-DEF..." yields 123456).
func botIDFromToken(token string) (int64, bool) {
	prefix, _, found := strings.Cut(token, ":")
	if !found {
		return 0, false
	}
	id, err := strconv.ParseInt(prefix, 10, 64)
	if err != nil || id <= 0 {
		return 0, false
	}
	return id, true
}
