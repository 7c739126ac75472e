// Package logger configures the process-wide structured logger. It
// emits JSON via log/slog at the level named in the server config.
package logger
