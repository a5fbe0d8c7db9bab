package docpipe

import "log/slog"

// Config configures the document pipeline.
type Config struct {
	// MaxFileSize is the largest file accepted, in bytes (default: 50 MB).
	MaxFileSize int64 `json:"max_file_size" yaml:"max_file_size"`

	// Root confines the paths accepted by the MCP tools. Empty allows any
	// path.
	Root string `json:"root" yaml:"root"`

	// Logger receives per-document debug output and extraction notes.
	Logger *slog.Logger `json:"-" yaml:"-"`
}

func (c *Config) defaults() {
	if c.MaxFileSize <= 0 {
		c.MaxFileSize = 50 << 20
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
}
