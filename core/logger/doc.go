// Package logger builds the zap loggers used for diagnostics.
package logger
