package main

import (
	"sync"

	"github.com/benbjohnson/clock"
	"github.com/cespare/xxhash/v2"
)

const shardCount = 32

// hub is the registry of live channels. Ids are spread over independently
// locked shards so unrelated channels never contend; every mutation of one
// id happens under that id's shard lock.
type hub struct {
	shards [shardCount]shard
	clock  clock.Clock
	m      *metrics
}

type shard struct {
	mu       sync.Mutex
	channels channels
}

type channels map[string]*channel

func newHub(clk clock.Clock, m *metrics) *hub {
	h := &hub{
		clock: clk,
		m:     m,
	}
	for i := range h.shards {
		h.shards[i].channels = make(channels)
	}
	return h
}

func (h *hub) shard(id string) *shard {
	return &h.shards[xxhash.Sum64String(id)%shardCount]
}

// getOrCreate returns the channel for id, creating it if needed.
func (h *hub) getOrCreate(id string) *channel {
	s := h.shard(id)
	s.mu.Lock()
	defer s.mu.Unlock()
	return h.getOrCreateLocked(s, id)
}

func (h *hub) getOrCreateLocked(s *shard, id string) *channel {
	if c, ok := s.channels[id]; ok {
		return c
	}
	c := newChannel(id, h.clock.Now(), h.m)
	s.channels[id] = c
	h.m.channelCreated()
	return c
}

func (h *hub) get(id string) (*channel, bool) {
	s := h.shard(id)
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.channels[id]
	return c, ok
}

// remove deletes id regardless of its connection count. Sessions still
// attached to the channel keep running and clean up on their own.
func (h *hub) remove(id string) bool {
	s := h.shard(id)
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.channels[id]
	if !ok {
		return false
	}
	h.removeLocked(s, c)
	return true
}

func (h *hub) removeLocked(s *shard, c *channel) {
	delete(s.channels, c.id)
	h.m.channelClosed(h.clock.Since(c.createdAt))
}

// connect registers a new session on id and returns its channel.
func (h *hub) connect(id string) *channel {
	s := h.shard(id)
	s.mu.Lock()
	defer s.mu.Unlock()
	c := h.getOrCreateLocked(s, id)
	c.conns++
	return c
}

// disconnect releases a session's hold on c. The entry is removed when its
// count reaches zero. If c is no longer the registered channel for its id,
// because it was deleted and possibly recreated, the registry is left as
// it is.
func (h *hub) disconnect(c *channel) (remaining int, removed bool) {
	s := h.shard(c.id)
	s.mu.Lock()
	defer s.mu.Unlock()
	if c.conns > 0 {
		c.conns--
	}
	if cur, ok := s.channels[c.id]; !ok || cur != c {
		return c.conns, false
	}
	if c.conns == 0 {
		h.removeLocked(s, c)
		return 0, true
	}
	return c.conns, false
}

// conns returns the connection count of the registered channel for id.
func (h *hub) conns(id string) (int, bool) {
	s := h.shard(id)
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.channels[id]
	if !ok {
		return 0, false
	}
	return c.conns, true
}

func (h *hub) len() int {
	n := 0
	for i := range h.shards {
		s := &h.shards[i]
		s.mu.Lock()
		n += len(s.channels)
		s.mu.Unlock()
	}
	return n
}
