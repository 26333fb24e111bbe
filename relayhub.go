// Package relayhub pairs two peers per named channel over websockets and
// relays binary messages between them.
//
//	relayhub -addr=:8081
//
// Each channel has exactly two roles, extension and browser. A peer joins
// a channel by opening a websocket to
//
//	ws://localhost:8081/channels/Channel_id/extension
//
// Messages sent by one role are delivered to the other. Delivery is lossy:
// a peer that has not read the previous message yet only gets
// the newest one, and a message sent while the other side is absent is
// dropped. Text messages are accepted and delivered as binary.
//
// The most recent message from the extension is kept and replayed to a
// browser when it connects, so a late browser learns the extension's
// current state.
//
// A message can be injected into a live channel by POSTing to the same
// path; the role in the path names the sender.
//
//	curl localhost:8081/channels/Channel_id/extension -d "Hello"
//
// Everything is as ephemeral as can be. A channel is forgotten when its
// last peer disconnects or when it is deleted.
//
//	curl -X DELETE localhost:8081/channels/Channel_id
//
// Channel ids must be valid UTF-8 of 1-256 characters.
package main

import (
	"github.com/benbjohnson/clock"
	"github.com/sirupsen/logrus"
)

const (
	idLenMin = 1
	idLenMax = 256
)

// relay bundles what handlers and sessions share.
type relay struct {
	hub   *hub
	m     *metrics
	clock clock.Clock
	cfg   *config
	log   logrus.FieldLogger
}

func newRelay(cfg *config, clk clock.Clock, m *metrics, log logrus.FieldLogger) *relay {
	return &relay{
		hub:   newHub(clk, m),
		m:     m,
		clock: clk,
		cfg:   cfg,
		log:   log,
	}
}
