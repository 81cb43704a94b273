package main

import (
	"os"
	"time"

	"github.com/adonese/kaos/kaos_fields"
	"github.com/sirupsen/logrus"
)

const (
	defaultLogSamplingTick  = 5 * time.Second
	defaultLogSamplingAfter = 2 * time.Second
)

// configureLogger applies the logging settings and fills the sampling
// defaults into cfg.
func configureLogger(logger *logrus.Logger, cfg *kaos_fields.KaosConfig) {
	logger.Out = os.Stderr
	if cfg.IsDebug {
		logger.SetLevel(logrus.DebugLevel)
		logger.SetReportCaller(true)
	} else {
		logger.SetLevel(logrus.InfoLevel)
		logger.SetReportCaller(false)
	}
	logger.SetFormatter(&logrus.JSONFormatter{
		TimestampFormat: time.RFC3339Nano,
	})

	if cfg.LogSamplingTickMs <= 0 {
		cfg.LogSamplingTickMs = int(defaultLogSamplingTick.Milliseconds())
	}
	if cfg.LogSamplingAfterMs <= 0 {
		cfg.LogSamplingAfterMs = int(defaultLogSamplingAfter.Milliseconds())
	}
}
