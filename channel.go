package main

import (
	"sync"
	"time"
)

// channel is the state shared by the two peers of one channel id. The
// connection count is owned by the hub and only touched under the shard
// lock that guards this channel's entry.
type channel struct {
	id        string
	topics    [2]*topic
	conns     int
	createdAt time.Time

	// mu protects cache and orders cache updates against join, so a
	// joining peer sees a message either as its replay or live, not both.
	mu    sync.Mutex
	cache []byte
}

func newChannel(id string, now time.Time, m *metrics) *channel {
	c := &channel{
		id:        id,
		createdAt: now,
	}
	for i := range c.topics {
		c.topics[i] = newTopic()
		c.topics[i].superseded = m.superseded
	}
	return c
}

// inbox is the topic read by r. Its counterpart publishes onto it.
func (c *channel) inbox(r role) *topic {
	return c.topics[r]
}

// join subscribes r to its inbox and returns the message to replay to it
// before any live delivery, or nil.
func (c *channel) join(r role) (*subscription, []byte) {
	c.mu.Lock()
	defer c.mu.Unlock()
	sub := c.inbox(r).subscribe()
	if !r.replays() {
		return sub, nil
	}
	return sub, c.cache
}

// send publishes msg from r to r's counterpart and updates the replay
// cache when r is the caching role. It returns the number of subscribers
// reached.
func (c *channel) send(from role, msg []byte) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	if from.caches() {
		c.cache = msg
	}
	return c.inbox(from.counterpart()).publish(msg)
}

// inject publishes without touching the replay cache.
func (c *channel) inject(from role, msg []byte) int {
	return c.inbox(from.counterpart()).publish(msg)
}

func (c *channel) cached() []byte {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.cache
}
