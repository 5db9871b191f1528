// Copyright (c) 2019 devblok
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package core

import (
	"fmt"
	"io"

	log "github.com/sirupsen/logrus"
)

// NewLogger creates a logger writing to out as configured
func NewLogger(cfg LogConfiguration, out io.Writer) (*log.Logger, error) {
	logger := log.New()
	logger.SetOutput(out)

	level, err := log.ParseLevel(cfg.Level)
	if err != nil {
		return nil, fmt.Errorf("log level: %w: %s", ErrInvalidData, err.Error())
	}
	logger.SetLevel(level)

	switch cfg.Format {
	case "", "text":
		logger.SetFormatter(&log.TextFormatter{
			FullTimestamp: true,
		})
	case "json":
		logger.SetFormatter(&log.JSONFormatter{})
	default:
		return nil, fmt.Errorf("log format %q: %w", cfg.Format, ErrInvalidData)
	}
	return logger, nil
}
