package main

import (
	"net/http"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"github.com/jpillora/requestlog"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"
)

// newHandler routes every endpoint both at the root and under /api, the
// prefix older clients use.
func newHandler(r *relay, st *stats, gatherer prometheus.Gatherer) http.Handler {
	handler := mux.NewRouter()
	route(handler, r, st, gatherer)
	route(handler.PathPrefix("/api").Subrouter(), r, st, gatherer)

	if r.cfg.logLevel == logrus.DebugLevel.String() || r.cfg.logLevel == logrus.TraceLevel.String() {
		return requestlog.Wrap(handler)
	}
	return handler
}

func route(router *mux.Router, r *relay, st *stats, gatherer prometheus.Gatherer) {
	channel := router.Path("/channels/{id}/{role}").Subrouter()

	// Route websocket requests
	channel.Methods("GET").MatcherFunc(func(req *http.Request, _ *mux.RouteMatch) bool {
		return websocket.IsWebSocketUpgrade(req)
	}).Handler(newWsHandler(r, r.cfg.origin))
	channel.Methods("GET").HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		sendBadRequestError(w, "Expected a websocket upgrade.")
	})
	channel.Methods("POST").Handler(postHandler{r: r})

	router.Path("/channels/{id}").Methods("DELETE").Handler(deleteHandler{r: r})
	router.Path("/status").Methods("GET").Handler(statusHandler{})
	router.Path("/metrics").Methods("GET").Handler(promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))

	router.Path("/stats/sessions/{session}/calls").Methods("POST").Handler(callsHandler{st: st})
	router.Path("/stats/sessions/{session}/texts").Methods("POST").Handler(textsHandler{st: st})
}
