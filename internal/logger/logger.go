// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Bucks County Community Church

// Package logger wraps logrus with the formatting used across avctl
package logger

import (
	"fmt"
	"io"
	"os"

	"github.com/sirupsen/logrus"
)

// Log is a logrus entry carrying per-module fields
type Log struct {
	*logrus.Entry
}

// Fields are a representation of formatted log fields
type Fields map[string]interface{}

// New creates a logger at level writing to out (stderr when nil)
func New(level string, out io.Writer) (*Log, error) {
	if out == nil {
		out = os.Stderr
	}
	if level == "" {
		level = "info"
	}

	log := logrus.New()
	log.SetOutput(out)
	log.Formatter = &logrus.TextFormatter{
		TimestampFormat:  "2006-01-02 15:04:05.0000",
		FullTimestamp:    true,
		QuoteEmptyFields: true,
	}

	lvl, err := logrus.ParseLevel(level)
	if err != nil {
		return nil, fmt.Errorf("logger: bad level %q: %w", level, err)
	}
	log.SetLevel(lvl)

	return &Log{Entry: logrus.NewEntry(log)}, nil
}

// Nop returns a logger that discards everything
func Nop() *Log {
	log := logrus.New()
	log.SetOutput(io.Discard)
	return &Log{Entry: logrus.NewEntry(log)}
}

// With adds fields to the formatted log entry
func (l *Log) With(fields Fields) *Log {
	return &Log{Entry: l.WithFields(logrus.Fields(fields))}
}

// Module is shorthand for With(Fields{"module": name})
func (l *Log) Module(name string) *Log {
	return l.With(Fields{"module": name})
}

// SetLevel changes the level of the underlying logger
func (l *Log) SetLevel(level string) error {
	lvl, err := logrus.ParseLevel(level)
	if err != nil {
		return fmt.Errorf("logger: bad level %q: %w", level, err)
	}
	l.Logger.SetLevel(lvl)
	return nil
}

// GetLevel returns the current level name
func (l *Log) GetLevel() string {
	return l.Logger.Level.String()
}

// SetOutput redirects the underlying logger
func (l *Log) SetOutput(out io.Writer) {
	l.Logger.SetOutput(out)
}
