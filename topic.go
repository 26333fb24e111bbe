package main

import (
	"sync"
)

// topic is a lossy broadcast of the most recent message. Every subscriber
// owns a single slot: a publish overwrites whatever the subscriber has not
// read yet, so a slow reader always sees the freshest value.
type topic struct {
	mux         sync.Mutex // Protects subscribers
	subscribers subscribers
	superseded  func(n int64)
}

type subscribers map[*subscription]interface {
}

type subscription struct {
	slot chan []byte
	t    *topic
	once sync.Once
}

func newTopic() *topic {
	return &topic{
		subscribers: make(subscribers),
		superseded:  func(int64) {},
	}
}

// subscribe returns a subscription that observes only messages published
// after this call.
func (t *topic) subscribe() *subscription {
	t.mux.Lock()
	defer t.mux.Unlock()

	sub := &subscription{
		slot: make(chan []byte, 1),
		t:    t,
	}
	t.subscribers[sub] = nil
	return sub
}

// c is the channel the subscriber selects on.
func (s *subscription) c() <-chan []byte {
	return s.slot
}

func (s *subscription) unsubscribe() {
	s.once.Do(func() {
		s.t.mux.Lock()
		defer s.t.mux.Unlock()

		delete(s.t.subscribers, s)
		close(s.slot)
	})
}

// publish hands msg to every current subscriber and returns how many were
// reached. With no subscribers the message is dropped.
func (t *topic) publish(msg []byte) int {
	t.mux.Lock()
	defer t.mux.Unlock()

	var superseded int64
	for sub := range t.subscribers {
		// Only publishers write to a slot and they hold t.mux, so after
		// draining a stale value the send below cannot block.
		select {
		case <-sub.slot:
			superseded++
		default:
		}
		sub.slot <- msg
	}
	if superseded > 0 {
		t.superseded(superseded)
	}
	return len(t.subscribers)
}

func (t *topic) len() int {
	t.mux.Lock()
	defer t.mux.Unlock()
	return len(t.subscribers)
}
