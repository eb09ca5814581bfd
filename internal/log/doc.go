// Package log provides structured logging helpers for relayrotor.
// It wraps log/slog with a handler that masks relay credentials so that
// proxy endpoints of the form user:pass@host never reach the logs intact.
package log
