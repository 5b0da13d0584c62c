package tui

import (
	"context"

	"github.com/Veraticus/riskdesk/internal/chat"
	"github.com/Veraticus/riskdesk/internal/tui/themes"
)

// Chatter answers chat queries. *chat.Pipeline satisfies it.
type Chatter interface {
	Handle(ctx context.Context, q chat.Query) chat.Result
}

// Config holds the console configuration.
type Config struct {
	Chat       Chatter
	Theme      themes.Theme
	CustomerID string
	Width      int
	Height     int
	AltScreen  bool
}

// Option configures the console.
type Option func(*Config)

func defaultConfig() Config {
	return Config{
		Theme:     themes.Default,
		Width:     100,
		Height:    30,
		AltScreen: true,
	}
}

// WithChat sets the component that answers queries.
func WithChat(c Chatter) Option {
	return func(cfg *Config) {
		cfg.Chat = c
	}
}

// WithTheme sets the color theme.
func WithTheme(theme themes.Theme) Option {
	return func(cfg *Config) {
		cfg.Theme = theme
	}
}

// WithCustomer sets the customer the session starts with.
func WithCustomer(id string) Option {
	return func(cfg *Config) {
		cfg.CustomerID = id
	}
}

// WithSize sets the initial size, before the terminal reports its own.
func WithSize(width, height int) Option {
	return func(cfg *Config) {
		cfg.Width = width
		cfg.Height = height
	}
}

// WithAltScreen controls whether the console takes over the whole terminal.
func WithAltScreen(enabled bool) Option {
	return func(cfg *Config) {
		cfg.AltScreen = enabled
	}
}
