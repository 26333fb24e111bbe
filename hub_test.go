package main

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	gometrics "github.com/rcrowley/go-metrics"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestHub() *hub {
	return newHub(clock.NewMock(), newMetrics(gometrics.NewRegistry()))
}

func TestGetOrCreate(t *testing.T) {
	h := newTestHub()

	if h.len() != 0 {
		t.Fatal("Expectation: 0, Received:", h.len())
	}

	// creating a new id should
	// add a (1) channel to the hub
	c := h.getOrCreate("monkey")
	if h.len() != 1 {
		t.Fatal("Expectation: 1, Received:", h.len())
	}

	// the same id should
	// use the same channel
	if h.getOrCreate("monkey") != c {
		t.Fatal("Expectation: same channel for the same id")
	}
	if h.len() != 1 {
		t.Fatal("Expectation: 1, Received:", h.len())
	}

	// ids are case sensitive
	h.getOrCreate("Monkey")
	if h.len() != 2 {
		t.Fatal("Expectation: 2, Received:", h.len())
	}
}

func TestGetOrCreateConcurrent(t *testing.T) {
	h := newTestHub()
	const n = 64
	got := make([]*channel, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			got[i] = h.getOrCreate("race")
		}(i)
	}
	wg.Wait()

	for i := range got {
		require.Same(t, got[0], got[i])
	}
	assert.Equal(t, 1, h.len())
}

func TestShards(t *testing.T) {
	h := newTestHub()
	// ids of every length up to a few hash blocks, including multi-byte runes
	ids := []string{"m", "mo", "mon", "monk", "monkey", "ünïcødé", "频道"}
	for i := 0; i < 100; i++ {
		ids = append(ids, fmt.Sprintf("channel-%d", i))
	}

	var wg sync.WaitGroup
	for _, id := range ids {
		wg.Add(1)
		go func(id string) {
			defer wg.Done()
			h.connect(id)
		}(id)
	}
	wg.Wait()
	assert.Equal(t, len(ids), h.len())

	used := make(map[*shard]bool)
	for _, id := range ids {
		s := h.shard(id)
		require.Same(t, s, h.shard(id), id)
		_, ok := s.channels[id]
		require.True(t, ok, "Expectation: %q in its shard", id)
		used[s] = true
	}
	assert.Greater(t, len(used), 1, "ids should spread over shards")
}

func TestGet(t *testing.T) {
	h := newTestHub()
	_, ok := h.get("monkey")
	assert.False(t, ok, "get must not create")
	assert.Equal(t, 0, h.len())

	c := h.getOrCreate("monkey")
	got, ok := h.get("monkey")
	require.True(t, ok)
	assert.Same(t, c, got)
}

func TestRemove(t *testing.T) {
	h := newTestHub()
	h.getOrCreate("monkey")
	h.getOrCreate("banana")

	if !h.remove("monkey") {
		t.Fatal("ERR: remove reported a missing channel")
	}
	if _, ok := h.get("monkey"); ok {
		t.Fatal("ERR: Channel not removed")
	}
	if _, ok := h.get("banana"); !ok {
		t.Fatal("ERR: Channel removed")
	}

	// removing again is not an error
	if h.remove("monkey") {
		t.Fatal("ERR: remove reported an absent channel as present")
	}
}

func TestConnectDisconnect(t *testing.T) {
	h := newTestHub()

	a := h.connect("x")
	b := h.connect("x")
	require.Same(t, a, b)
	n, ok := h.conns("x")
	require.True(t, ok)
	assert.Equal(t, 2, n)

	remaining, removed := h.disconnect(a)
	assert.Equal(t, 1, remaining)
	assert.False(t, removed)
	_, ok = h.get("x")
	assert.True(t, ok, "entry must persist while a session is active")

	remaining, removed = h.disconnect(b)
	assert.Equal(t, 0, remaining)
	assert.True(t, removed)
	_, ok = h.get("x")
	assert.False(t, ok, "entry must be removed with its last session")

	// a fresh connect starts over with an empty cache
	c := h.connect("x")
	assert.NotSame(t, a, c)
	assert.Nil(t, c.cached())
}

func TestDisconnectAfterRemove(t *testing.T) {
	h := newTestHub()
	c := h.connect("x")
	require.True(t, h.remove("x"))

	remaining, removed := h.disconnect(c)
	assert.Equal(t, 0, remaining)
	assert.False(t, removed)
	assert.Equal(t, 0, h.len())
}

func TestDisconnectAfterRemoveAndRecreate(t *testing.T) {
	h := newTestHub()
	stale := h.connect("x")
	require.True(t, h.remove("x"))
	fresh := h.connect("x")

	// the stale session's cleanup must not touch the fresh entry
	h.disconnect(stale)
	n, ok := h.conns("x")
	require.True(t, ok)
	assert.Equal(t, 1, n)

	got, _ := h.get("x")
	assert.Same(t, fresh, got)
}

func TestConnectionCountInvariant(t *testing.T) {
	h := newTestHub()
	stop := make(chan struct{})
	violations := make(chan int, 1)

	// watch for a zero-count entry while sessions come and go
	go func() {
		for {
			select {
			case <-stop:
				return
			default:
			}
			if n, ok := h.conns("x"); ok && n <= 0 {
				select {
				case violations <- n:
				default:
				}
			}
		}
	}()

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				c := h.connect("x")
				h.disconnect(c)
			}
		}()
	}
	wg.Wait()
	close(stop)

	select {
	case n := <-violations:
		t.Fatal("Expectation: no zero-count entry, Received count:", n)
	case <-time.After(10 * time.Millisecond):
	}
	assert.Equal(t, 0, h.len())
}

func TestHubChannelMetrics(t *testing.T) {
	reg := gometrics.NewRegistry()
	mock := clock.NewMock()
	h := newHub(mock, newMetrics(reg))

	c := h.connect("x")
	h.connect("y")
	assert.EqualValues(t, 2, gometrics.GetOrRegisterGauge("relay.channels.open", reg).Value())

	mock.Add(time.Minute)
	h.disconnect(c)
	assert.EqualValues(t, 1, gometrics.GetOrRegisterGauge("relay.channels.open", reg).Value())
	assert.EqualValues(t, 2, gometrics.GetOrRegisterCounter("relay.channels.created", reg).Count())
	assert.EqualValues(t, 1, gometrics.GetOrRegisterCounter("relay.channels.closed", reg).Count())
	assert.EqualValues(t, time.Minute, gometrics.GetOrRegisterTimer("relay.channels.lifetime", reg).Max())
}
