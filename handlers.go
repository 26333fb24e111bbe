package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"
)

var errInvalidChannel = errors.New("invalid channel id")

type wsHandler struct {
	r        *relay
	upgrader *websocket.Upgrader
}

func newWsHandler(r *relay, origin string) wsHandler {
	return wsHandler{r: r, upgrader: newUpgrader(origin)}
}

func (wsh wsHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	id, ro, ok := channelRequest(w, r)
	if !ok {
		return
	}
	ws, err := wsh.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// The upgrader has already answered the request.
		wsh.r.log.WithError(err).Debug("websocket upgrade failed")
		return
	}
	c := newConnection(ws, wsh.r, id, ro, uuid.NewString())
	c.run()
}

type postHandler struct {
	r *relay
}

func (ph postHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	id, ro, ok := channelRequest(w, r)
	if !ok {
		return
	}
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, ph.r.cfg.maxMessageSize))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			http.Error(w, "Error: message too large.", http.StatusRequestEntityTooLarge)
			return
		}
		ph.r.log.WithError(err).Debug("reading POST body failed")
		http.Error(w, "Error: unable to read POST body.", http.StatusInternalServerError)
		return
	}
	ch, ok := ph.r.hub.get(id)
	if !ok {
		http.Error(w, "Channel does not exist or has been closed", http.StatusNotFound)
		return
	}
	n := ch.inject(ro, body)
	ph.r.m.injected(ro)
	ph.r.log.WithFields(logrus.Fields{
		"channel":     id,
		"role":        ro,
		"subscribers": n,
	}).Trace("forwarding HTTP message to websocket")
}

type deleteHandler struct {
	r *relay
}

func (dh deleteHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	id, err := channelID(r)
	if err != nil {
		sendBadRequestError(w, err.Error())
		return
	}
	existed := dh.r.hub.remove(id)
	dh.r.log.WithField("channel", id).WithField("existed", existed).Debug("deleting channel")
}

type statusHandler struct{}

func (statusHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(struct {
		Status string `json:"status"`
	}{"ok"})
}

// channelRequest validates the channel id and role of a channel route and
// answers the request itself when either is invalid.
func channelRequest(w http.ResponseWriter, r *http.Request) (string, role, bool) {
	id, err := channelID(r)
	if err != nil {
		sendBadRequestError(w, err.Error())
		return "", 0, false
	}
	ro, err := parseRole(mux.Vars(r)["role"])
	if err != nil {
		sendBadRequestError(w, `Role must be "extension" or "browser".`)
		return "", 0, false
	}
	return id, ro, true
}

func channelID(r *http.Request) (string, error) {
	id := mux.Vars(r)["id"]
	if !utf8.ValidString(id) {
		return "", fmt.Errorf("%w: must be valid Unicode (UTF-8)", errInvalidChannel)
	}
	idLen := utf8.RuneCountInString(id)
	if !(idLenMin <= idLen && idLen <= idLenMax) {
		return "", fmt.Errorf("%w: length must be %d-%d Unicode characters (UTF-8)",
			errInvalidChannel, idLenMin, idLenMax)
	}
	return id, nil
}

func sendBadRequestError(w http.ResponseWriter, str string) {
	http.Error(w,
		fmt.Sprintf("Error: bad request. %s", str),
		http.StatusBadRequest)
}
