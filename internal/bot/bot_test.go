package bot_test

import (
	"errors"
	"log/slog"
	"testing"

	"go.opentelemetry.io/otel/trace/noop"

	"github.com/aaafuria/furia-feed/internal/bot"
	"github.com/aaafuria/furia-feed/internal/config"
)

func TestNew(t *testing.T) {
	tests := []struct {
		name    string
		token   string
		wantErr error
	}{
		{name: "empty token disables the bot", token: "", wantErr: bot.ErrDisabled},
		{name: "token creates a session", token: "abc"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b, err := bot.New(config.DiscordConfig{Token: tt.token}, nil, 10, slog.Default(), noop.NewTracerProvider())
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("New() error = %v, want %v", err, tt.wantErr)
			}
			if tt.wantErr == nil && b == nil {
				t.Fatal("New() returned nil bot")
			}
		})
	}
}
