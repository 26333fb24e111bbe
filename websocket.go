package main

import (
	"net/http"
	"net/url"
	"time"

	"github.com/gorilla/websocket"
)

const (
	// Time allowed to write a message to the peer.
	writeWait = 10 * time.Second

	// Send pings to peer after this much outbound silence.
	pingPeriod = 20 * time.Second

	// Sessions with no data in either direction for this long are closed.
	inactivityTimeout = 30 * time.Minute

	// Maximum message size allowed from peer.
	maxMessageSize = 1 << 20
)

type frameKind int

const (
	frameBinary frameKind = iota
	frameText
	framePing
	framePong
	frameClose
)

func (k frameKind) String() string {
	switch k {
	case frameBinary:
		return "binary"
	case frameText:
		return "text"
	case framePing:
		return "ping"
	case framePong:
		return "pong"
	}
	return "close"
}

type frame struct {
	kind frameKind
	data []byte
	err  error
}

// newUpgrader returns an upgrader that accepts any origin when origin is
// empty, and otherwise only requests whose Origin header matches it.
func newUpgrader(origin string) *websocket.Upgrader {
	u := &websocket.Upgrader{ReadBufferSize: 1024, WriteBufferSize: 1024}
	if origin == "" {
		u.CheckOrigin = func(r *http.Request) bool { return true }
		return u
	}
	u.CheckOrigin = func(r *http.Request) bool {
		o, err := url.Parse(r.Header.Get("Origin"))
		if err != nil {
			return false
		}
		return o.Scheme+"://"+o.Host == origin
	}
	return u
}

// pumpFrames reads ws until it fails and hands every frame, control frames
// included, to frames. It returns once done is closed or a read fails; the
// final frame carries the read error.
func pumpFrames(ws *websocket.Conn, limit int64, frames chan<- frame, done <-chan struct{}) {
	deliver := func(f frame) bool {
		select {
		case frames <- f:
			return true
		case <-done:
			return false
		}
	}
	ws.SetReadLimit(limit)
	ws.SetPingHandler(func(data string) error {
		deliver(frame{kind: framePing, data: []byte(data)})
		return nil
	})
	ws.SetPongHandler(func(data string) error {
		deliver(frame{kind: framePong, data: []byte(data)})
		return nil
	})
	for {
		messageType, p, err := ws.ReadMessage()
		if err != nil {
			deliver(frame{kind: frameClose, err: err})
			return
		}
		kind := frameBinary
		if messageType == websocket.TextMessage {
			kind = frameText
		}
		if !deliver(frame{kind: kind, data: p}) {
			return
		}
	}
}
