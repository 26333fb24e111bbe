package main

import (
	"errors"
	"fmt"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"
)

type connState int

const (
	connecting connState = iota
	active
	closed
)

func (s connState) String() string {
	switch s {
	case connecting:
		return "connecting"
	case active:
		return "active"
	}
	return "closed"
}

var errInactive = errors.New("inactivity timeout")

// connection is one websocket peer bound to a channel id and a role.
type connection struct {
	ws    *websocket.Conn
	r     *relay
	id    string
	role  role
	log   *logrus.Entry
	state connState

	keepalive *clock.Timer
	inactive  *clock.Timer
}

func newConnection(ws *websocket.Conn, r *relay, id string, ro role, session string) *connection {
	return &connection{
		ws:   ws,
		r:    r,
		id:   id,
		role: ro,
		log: r.log.WithFields(logrus.Fields{
			"channel": id,
			"role":    ro,
			"session": session,
		}),
	}
}

// run serves the connection until it fails or times out, then releases
// its hold on the channel.
func (c *connection) run() {
	// Timers start before the session is counted so anyone observing the
	// count sees a session whose deadlines are already running.
	c.keepalive = c.r.clock.Timer(c.r.cfg.pingPeriod)
	c.inactive = c.r.clock.Timer(c.r.cfg.inactivityTimeout)

	ch := c.r.hub.connect(c.id)
	c.setState(active)
	opened := c.r.clock.Now()
	c.r.m.sessionOpened(c.role)
	c.log.Debug("websocket connected")

	sub, replay := ch.join(c.role)
	frames := make(chan frame)
	done := make(chan struct{})
	go pumpFrames(c.ws, c.r.cfg.maxMessageSize, frames, done)

	err := c.serve(sub, ch, replay, frames)

	c.setState(closed)
	c.keepalive.Stop()
	c.inactive.Stop()
	sub.unsubscribe()
	close(done)
	c.ws.Close()
	remaining, removed := c.r.hub.disconnect(ch)
	c.r.m.sessionClosed(c.role, c.r.clock.Since(opened))
	c.log.WithFields(logrus.Fields{
		"reason":    err,
		"remaining": remaining,
		"removed":   removed,
	}).Debug("websocket closed")
}

func (c *connection) setState(s connState) {
	c.state = s
	c.log.WithField("state", s).Trace("session state changed")
}

func (c *connection) serve(sub *subscription, ch *channel, replay []byte, frames <-chan frame) error {
	if replay != nil {
		if err := c.outbound(replay); err != nil {
			return err
		}
	}
	for {
		// Prefer live data over a keepalive that is due at the same time.
		select {
		case msg := <-sub.c():
			if err := c.outbound(msg); err != nil {
				return err
			}
			continue
		default:
		}

		select {
		case msg := <-sub.c():
			if err := c.outbound(msg); err != nil {
				return err
			}
		case f := <-frames:
			if err := c.inbound(ch, f); err != nil {
				return err
			}
		case <-c.keepalive.C:
			if err := c.ping(); err != nil {
				return err
			}
		case <-c.inactive.C:
			return errInactive
		}
	}
}

// outbound writes msg to the peer. Deadlines restart before the write, so
// once the peer holds the message the session is known to be active.
func (c *connection) outbound(msg []byte) error {
	c.touch()
	c.ws.SetWriteDeadline(time.Now().Add(writeWait))
	if err := c.ws.WriteMessage(websocket.BinaryMessage, msg); err != nil {
		return fmt.Errorf("write message: %w", err)
	}
	return nil
}

// inbound handles one frame read from the peer. Data and pings count as
// activity. Pongs do not, so a peer that only answers keepalive pings is
// still closed after the inactivity timeout.
func (c *connection) inbound(ch *channel, f frame) error {
	switch f.kind {
	case frameBinary, frameText:
		c.touch()
		n := ch.send(c.role, f.data)
		c.r.m.forwarded(c.role)
		c.log.WithField("subscribers", n).Trace("forwarded message")
	case framePing:
		c.touch()
		deadline := time.Now().Add(writeWait)
		if err := c.ws.WriteControl(websocket.PongMessage, f.data, deadline); err != nil {
			return fmt.Errorf("write pong: %w", err)
		}
	case framePong:
		// Answers to our keepalive pings say nothing about activity.
	default:
		return f.err
	}
	return nil
}

func (c *connection) ping() error {
	reset(c.keepalive, c.r.cfg.pingPeriod)
	deadline := time.Now().Add(writeWait)
	if err := c.ws.WriteControl(websocket.PingMessage, nil, deadline); err != nil {
		return fmt.Errorf("write ping: %w", err)
	}
	return nil
}

// touch restarts both deadlines when data moves in either direction.
func (c *connection) touch() {
	reset(c.keepalive, c.r.cfg.pingPeriod)
	reset(c.inactive, c.r.cfg.inactivityTimeout)
}

func reset(t *clock.Timer, d time.Duration) {
	if !t.Stop() {
		select {
		case <-t.C:
		default:
		}
	}
	t.Reset(d)
}
