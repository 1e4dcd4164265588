package profile

import (
	"path/filepath"
	"testing"
)

func TestBotIDFromToken(t *testing.T) {
	tests := []struct {
		name   string
		token  string
		wantID int64
		wantOK bool
	}{
		{"regular token", "123456789:AAFxyz_abc", 123456789, true},
		{"no colon", "123456789", 0, false},
		{"non-numeric prefix", "bot:AAFxyz", 0, false},
		{"negative prefix", "-5:AAFxyz", 0, false},
		{"empty", "", 0, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			id, ok := botIDFromToken(tt.token)
			if ok != tt.wantOK || id != tt.wantID {
				t.Errorf("botIDFromToken(%q) = (%d, %v), want (%d, %v)", tt.token, id, ok, tt.wantID, tt.wantOK)
			}
		})
	}
}

func TestParseIDList(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		want []int64
	}{
		{"empty", "", nil},
		{"single", "42", []int64{42}},
		{"multiple with spaces", "1, 2 ,3", []int64{1, 2, 3}},
		{"skips garbage", "1,abc,3", []int64{1, 3}},
		{"negative chat ids", "-1001234,99", []int64{-1001234, 99}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := parseIDList(tt.raw)
			if len(got) != len(tt.want) {
				t.Fatalf("parseIDList(%q) = %v, want %v", tt.raw, got, tt.want)
			}
			for i := range got {
				if got[i] != tt.want[i] {
					t.Errorf("parseIDList(%q)[%d] = %d, want %d", tt.raw, i, got[i], tt.want[i])
				}
			}
		})
	}
}

func TestValidate(t *testing.T) {
	dataDir := t.TempDir()

	t.Run("valid sqlite profile", func(t *testing.T) {
		p := &Profile{
			BotToken:    "42:token",
			BotUsername: "mynah_bot",
			Data:        dataDir,
			Driver:      "sqlite",
			Mode:        "dev",
		}
		if err := p.Validate(); err != nil {
			t.Fatalf("Validate() error: %v", err)
		}
		if p.BotID != 42 {
			t.Errorf("BotID = %d, want 42", p.BotID)
		}
		if p.DSN == "" {
			t.Error("sqlite DSN should be derived from the data dir")
		}
		if p.Cache != filepath.Join(dataDir, "cache") {
			t.Errorf("Cache = %q, want under data dir", p.Cache)
		}
	})

	t.Run("missing token", func(t *testing.T) {
		p := &Profile{BotUsername: "x", Data: dataDir, Driver: "sqlite"}
		if err := p.Validate(); err == nil {
			t.Error("Validate() should fail without TELEGRAM_TOKEN")
		}
	})

	t.Run("postgres needs user when DSN empty", func(t *testing.T) {
		p := &Profile{
			BotToken:    "42:token",
			BotUsername: "x",
			Data:        dataDir,
			Driver:      "postgres",
		}
		if err := p.Validate(); err == nil {
			t.Error("Validate() should fail without POSTGRES_USER")
		}
	})

	t.Run("postgres DSN assembled", func(t *testing.T) {
		p := &Profile{
			BotToken:         "42:token",
			BotUsername:      "x",
			Data:             dataDir,
			Driver:           "postgres",
			PostgresUser:     "mynah",
			PostgresPassword: "secret",
			PostgresHost:     "db:5432",
		}
		if err := p.Validate(); err != nil {
			t.Fatalf("Validate() error: %v", err)
		}
		want := "postgres://mynah:secret@db:5432/mynah?sslmode=disable"
		if p.DSN != want {
			t.Errorf("DSN = %q, want %q", p.DSN, want)
		}
	})

	t.Run("unknown driver rejected", func(t *testing.T) {
		p := &Profile{BotToken: "42:t", BotUsername: "x", Data: dataDir, Driver: "mysql"}
		if err := p.Validate(); err == nil {
			t.Error("Validate() should reject unsupported drivers")
		}
	})
}

func TestFromEnv(t *testing.T) {
	t.Setenv("TELEGRAM_TOKEN", "99:abc")
	t.Setenv("BOT_USERNAME", "@mynah_bot")
	t.Setenv("ADMIN_IDS", "1,2")
	t.Setenv("FEEDBACK_TARGET_ID", "-100555")
	t.Setenv("OAI_ENABLED", "true")
	t.Setenv("POSTGRES_POOL_MAX_CONNECTIONS", "25")

	p := &Profile{}
	p.FromEnv()

	if p.BotToken != "99:abc" {
		t.Errorf("BotToken = %q", p.BotToken)
	}
	if p.BotUsername != "mynah_bot" {
		t.Errorf("BotUsername = %q, leading @ should be trimmed", p.BotUsername)
	}
	if len(p.AdminIDs) != 2 {
		t.Errorf("AdminIDs = %v", p.AdminIDs)
	}
	if p.FeedbackTargetID != -100555 {
		t.Errorf("FeedbackTargetID = %d", p.FeedbackTargetID)
	}
	if !p.OAIEnabled {
		t.Error("OAIEnabled should be true")
	}
	if p.PoolMaxConns != 25 {
		t.Errorf("PoolMaxConns = %d, want 25", p.PoolMaxConns)
	}
}
