package server

import (
	"io"
	"log/slog"

	"github.com/ice-blockchain/go-rwsplit"
	"github.com/ice-blockchain/go-rwsplit/config"
)

// NewLogger builds the daemon logger out of the logging section.
func NewLogger(cfg config.LoggingConfig, w io.Writer) (rwsplit.Logger, error) {
	level, err := config.ParseLevel(cfg.Level)
	if err != nil {
		return nil, err
	}
	opts := &slog.HandlerOptions{Level: level}

	var handler slog.Handler
	if cfg.Format == "json" {
		handler = slog.NewJSONHandler(w, opts)
	} else {
		handler = slog.NewTextHandler(w, opts)
	}
	return rwsplit.NewSlogLogger(slog.New(handler)), nil
}
