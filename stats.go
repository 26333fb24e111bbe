package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"
)

const (
	callsTable = "calls"
	textsTable = "texts"
)

// statsRecord is the part shared by every row.
type statsRecord struct {
	InsertID  string    `json:"insert_id"`
	SessionID string    `json:"session_id"`
	Timestamp time.Time `json:"timestamp"`
}

type callRecord struct {
	Duration uint32  `json:"duration"`
	Result   *string `json:"result"`
}

type callRow struct {
	callRecord
	statsRecord
}

// stats batches usage records posted by clients and hands them to a sink
// on an interval. Adding a record never waits for a flush.
type stats struct {
	mu   sync.Mutex // Protects rows
	rows map[string][]interface{}

	sink    sink
	clock   clock.Clock
	limiter *rate.Limiter
	log     logrus.FieldLogger
}

func newStats(s sink, clk clock.Clock, limiter *rate.Limiter, log logrus.FieldLogger) *stats {
	return &stats{
		rows:    make(map[string][]interface{}),
		sink:    s,
		clock:   clk,
		limiter: limiter,
		log:     log,
	}
}

func (st *stats) newRecord(session string) statsRecord {
	return statsRecord{
		InsertID:  uuid.NewString(),
		SessionID: session,
		Timestamp: st.clock.Now().UTC(),
	}
}

func (st *stats) add(table string, row interface{}) {
	st.mu.Lock()
	st.rows[table] = append(st.rows[table], row)
	st.mu.Unlock()
}

// swap takes the accumulated rows, leaving an empty buffer behind.
func (st *stats) swap() map[string][]interface{} {
	st.mu.Lock()
	defer st.mu.Unlock()
	rows := st.rows
	st.rows = make(map[string][]interface{})
	return rows
}

// flush submits everything accumulated so far. Sink errors are logged and
// the affected rows are dropped.
func (st *stats) flush(ctx context.Context) {
	for table, rows := range st.swap() {
		if len(rows) == 0 {
			continue
		}
		log := st.log.WithFields(logrus.Fields{"table": table, "rows": len(rows)})
		if err := st.sink.insertAll(ctx, table, rows); err != nil {
			log.WithError(err).Error("error submitting stats")
			continue
		}
		log.Trace("submitted stats")
	}
}

// run flushes every interval until ctx is done, then flushes once more.
func (st *stats) run(ctx context.Context, interval time.Duration) error {
	t := st.clock.Ticker(interval)
	defer t.Stop()
	for {
		select {
		case <-t.C:
			st.flush(ctx)
		case <-ctx.Done():
			st.flush(context.Background())
			return st.sink.Close()
		}
	}
}

type callsHandler struct {
	st *stats
}

func (ch callsHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if !ch.st.allow(w) {
		return
	}
	var call callRecord
	if err := json.NewDecoder(r.Body).Decode(&call); err != nil {
		sendBadRequestError(w, fmt.Sprintf("Invalid call record: %v.", err))
		return
	}
	ch.st.add(callsTable, callRow{
		callRecord:  call,
		statsRecord: ch.st.newRecord(mux.Vars(r)["session"]),
	})
}

type textsHandler struct {
	st *stats
}

func (th textsHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if !th.st.allow(w) {
		return
	}
	th.st.add(textsTable, th.st.newRecord(mux.Vars(r)["session"]))
}

func (st *stats) allow(w http.ResponseWriter) bool {
	if st.limiter.Allow() {
		return true
	}
	http.Error(w, "Error: too many stats requests.", http.StatusTooManyRequests)
	return false
}
