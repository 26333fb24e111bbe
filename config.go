package main

import (
	"errors"
	"flag"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
)

type config struct {
	addr        string
	origin      string
	stopTimeout time.Duration
	killTimeout time.Duration

	pingPeriod        time.Duration
	inactivityTimeout time.Duration
	maxMessageSize    int64

	metricsTick time.Duration

	statsInterval time.Duration
	statsDir      string
	statsRate     float64
	statsBurst    int

	logLevel string
	logJSON  bool
}

func defaultConfig() *config {
	return &config{
		addr:              "127.0.0.1:8081",
		stopTimeout:       10 * time.Second,
		killTimeout:       1 * time.Second,
		pingPeriod:        pingPeriod,
		inactivityTimeout: inactivityTimeout,
		maxMessageSize:    maxMessageSize,
		metricsTick:       60 * time.Second,
		statsInterval:     30 * time.Second,
		statsRate:         100,
		statsBurst:        200,
		logLevel:          "info",
	}
}

func (c *config) registerFlags(fs *flag.FlagSet) {
	fs.StringVar(&c.addr, "addr", c.addr, "http service address")
	fs.StringVar(&c.origin, "origin", c.origin, "websocket server checks Origin headers against this scheme://host[:port]")
	fs.DurationVar(&c.stopTimeout, "stop-timeout", c.stopTimeout, "stop timeout")
	fs.DurationVar(&c.killTimeout, "kill-timeout", c.killTimeout, "kill timeout")
	fs.DurationVar(&c.pingPeriod, "ping-interval", c.pingPeriod, "ping a peer after this much outbound silence")
	fs.DurationVar(&c.inactivityTimeout, "inactivity-timeout", c.inactivityTimeout, "close a session after this long without messages")
	fs.Int64Var(&c.maxMessageSize, "max-message-size", c.maxMessageSize, "maximum message size in bytes")
	fs.DurationVar(&c.metricsTick, "metrics.tick", c.metricsTick, "metrics: duration between reports")
	fs.DurationVar(&c.statsInterval, "stats.interval", c.statsInterval, "stats: duration between submissions")
	fs.StringVar(&c.statsDir, "stats.dir", c.statsDir, "stats: directory for gzipped NDJSON batches (log only when empty)")
	fs.Float64Var(&c.statsRate, "stats.rate", c.statsRate, "stats: accepted records per second")
	fs.IntVar(&c.statsBurst, "stats.burst", c.statsBurst, "stats: burst of accepted records")
	fs.StringVar(&c.logLevel, "log-level", c.logLevel, "log level (trace, debug, info, warn, error)")
	fs.BoolVar(&c.logJSON, "log-json", c.logJSON, "log as JSON")
}

func (c *config) validate() error {
	var errs []error
	if c.addr == "" {
		errs = append(errs, errors.New("addr is empty"))
	}
	if c.pingPeriod <= 0 {
		errs = append(errs, fmt.Errorf("ping-interval must be positive, got %v", c.pingPeriod))
	}
	if c.inactivityTimeout <= c.pingPeriod {
		errs = append(errs, fmt.Errorf("inactivity-timeout %v must exceed ping-interval %v",
			c.inactivityTimeout, c.pingPeriod))
	}
	if c.maxMessageSize <= 0 {
		errs = append(errs, fmt.Errorf("max-message-size must be positive, got %d", c.maxMessageSize))
	}
	if c.metricsTick <= 0 {
		errs = append(errs, fmt.Errorf("metrics.tick must be positive, got %v", c.metricsTick))
	}
	if c.statsInterval <= 0 {
		errs = append(errs, fmt.Errorf("stats.interval must be positive, got %v", c.statsInterval))
	}
	if c.statsRate <= 0 || c.statsBurst <= 0 {
		errs = append(errs, errors.New("stats.rate and stats.burst must be positive"))
	}
	if _, err := logrus.ParseLevel(c.logLevel); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}
