package main

import (
	"io"

	"github.com/sirupsen/logrus"
)

func newLogger(cfg *config, out io.Writer) *logrus.Logger {
	log := logrus.New()
	log.SetOutput(out)
	if cfg.logJSON {
		log.SetFormatter(&logrus.JSONFormatter{})
	} else {
		log.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	}
	// validate has already rejected unknown levels.
	level, err := logrus.ParseLevel(cfg.logLevel)
	if err != nil {
		level = logrus.InfoLevel
	}
	log.SetLevel(level)
	return log
}
