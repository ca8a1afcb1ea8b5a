package kero

import (
	"io"
	"log/slog"
)

// FileOption configures a File at open time.
type FileOption func(*fileOptions)

type fileOptions struct {
	logger *slog.Logger
}

// WithLogger injects a structured logger used for debug messages during
// MPHF construction and when Open falls back from mmap to buffered reads.
// The default is a discarding logger, mirroring bit's WithBuilderLogger.
func WithLogger(logger *slog.Logger) FileOption {
	return func(o *fileOptions) {
		o.logger = logger
	}
}

func newFileOptions(opts []FileOption) *fileOptions {
	o := &fileOptions{logger: slog.New(slog.NewTextHandler(io.Discard, nil))}
	for _, opt := range opts {
		opt(o)
	}
	return o
}
