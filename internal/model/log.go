package model

import (
	"fmt"

	"go.uber.org/zap"
)

// Log is an append-only list of human-readable pipeline messages. Every
// line is mirrored to the global logger.
type Log struct {
	Lines []string `json:"lines"`
}

// Infof appends an informational line.
func (l *Log) Infof(format string, args ...any) {
	msg := fmt.Sprintf(format, args...)
	l.Lines = append(l.Lines, msg)
	zap.L().Info(msg)
}

// Warnf appends a warning line.
func (l *Log) Warnf(format string, args ...any) {
	msg := fmt.Sprintf(format, args...)
	l.Lines = append(l.Lines, "WARNING: "+msg)
	zap.L().Warn(msg)
}

// Append copies another log's lines onto this one.
func (l *Log) Append(other Log) {
	l.Lines = append(l.Lines, other.Lines...)
}
