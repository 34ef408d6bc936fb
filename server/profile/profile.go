// Package profile resolves the runtime configuration from flags and
// PCPCHAT_-prefixed environment variables.
package profile

import (
	"crypto/rand"
	"encoding/hex"
	"log/slog"

	"github.com/pkg/errors"
	"github.com/spf13/viper"
)

// Profile is the resolved runtime configuration.
type Profile struct {
	// Addr is the bind address; empty means all interfaces.
	Addr string
	// Port is the HTTP listen port.
	Port int
	// Mode is "dev" or "prod".
	Mode string
	// Data is the directory holding the local store files.
	Data string
	// Driver selects the remote backend: "postgres", "mysql", or "" for none.
	Driver string
	// DSN is the remote backend connection string.
	DSN string
	// SessionSecret signs session tokens. Generated per-process when unset,
	// which invalidates sessions across restarts.
	SessionSecret string
	// OpenRouterAPIKey authorizes completion calls.
	OpenRouterAPIKey string
	// Model is the completion model identifier.
	Model string
	// HuggingFaceToken authorizes image generation calls.
	HuggingFaceToken string
}

// GetProfile reads and validates the configuration from viper.
func GetProfile() (*Profile, error) {
	p := &Profile{
		Addr:             viper.GetString("addr"),
		Port:             viper.GetInt("port"),
		Mode:             viper.GetString("mode"),
		Data:             viper.GetString("data"),
		Driver:           viper.GetString("driver"),
		DSN:              viper.GetString("dsn"),
		SessionSecret:    viper.GetString("session-secret"),
		OpenRouterAPIKey: viper.GetString("openrouter-api-key"),
		Model:            viper.GetString("model"),
		HuggingFaceToken: viper.GetString("huggingface-token"),
	}
	switch p.Driver {
	case "", "postgres", "mysql":
	default:
		return nil, errors.Errorf("unknown driver %q (want postgres, mysql, or empty)", p.Driver)
	}
	if p.Driver != "" && p.DSN == "" {
		return nil, errors.Errorf("driver %q requires --dsn", p.Driver)
	}
	if p.SessionSecret == "" {
		buf := make([]byte, 32)
		if _, err := rand.Read(buf); err != nil {
			return nil, errors.Wrap(err, "generate session secret")
		}
		p.SessionSecret = hex.EncodeToString(buf)
		slog.Warn("no session secret configured, sessions will not survive restarts")
	}
	return p, nil
}
