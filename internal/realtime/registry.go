package realtime

import (
	"sync"

	"statescape/internal/observability"
)

// Registry tracks which clients subscribe to which topics. All methods are
// safe for concurrent use. Join is idempotent and Leave of a non-member is a
// no-op, so replayed client frames never corrupt membership.
type Registry struct {
	mu           sync.RWMutex
	topics       map[Topic]map[*Client]struct{}
	clientTopics map[*Client]map[Topic]struct{}
}

// NewRegistry creates an empty Registry.
func NewRegistry() *Registry {
	return &Registry{
		topics:       make(map[Topic]map[*Client]struct{}),
		clientTopics: make(map[*Client]map[Topic]struct{}),
	}
}

// Join subscribes the client to the topic. Joining twice has no effect.
func (r *Registry) Join(c *Client, t Topic) {
	if !t.Valid() {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	members, ok := r.topics[t]
	if !ok {
		members = make(map[*Client]struct{})
		r.topics[t] = members
	}
	if _, exists := members[c]; exists {
		return
	}
	members[c] = struct{}{}

	subs, ok := r.clientTopics[c]
	if !ok {
		subs = make(map[Topic]struct{})
		r.clientTopics[c] = subs
	}
	subs[t] = struct{}{}

	observability.TopicConnections.WithLabelValues(string(t.Kind)).Inc()
}

// Leave unsubscribes the client from the topic. Leaving a topic the client
// never joined has no effect.
func (r *Registry) Leave(c *Client, t Topic) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.leaveLocked(c, t)
}

func (r *Registry) leaveLocked(c *Client, t Topic) {
	members, ok := r.topics[t]
	if !ok {
		return
	}
	if _, exists := members[c]; !exists {
		return
	}
	delete(members, c)
	if len(members) == 0 {
		delete(r.topics, t)
	}
	if subs, ok := r.clientTopics[c]; ok {
		delete(subs, t)
		if len(subs) == 0 {
			delete(r.clientTopics, c)
		}
	}
	observability.TopicConnections.WithLabelValues(string(t.Kind)).Dec()
}

// DropAll removes the client from every topic it joined and returns the
// topics it was subscribed to. Called on disconnect.
func (r *Registry) DropAll(c *Client) []Topic {
	r.mu.Lock()
	defer r.mu.Unlock()

	subs, ok := r.clientTopics[c]
	if !ok {
		return nil
	}
	dropped := make([]Topic, 0, len(subs))
	for t := range subs {
		dropped = append(dropped, t)
	}
	for _, t := range dropped {
		r.leaveLocked(c, t)
	}
	return dropped
}

// Members returns a snapshot of the clients subscribed to the topic.
func (r *Registry) Members(t Topic) []*Client {
	r.mu.RLock()
	defer r.mu.RUnlock()

	members, ok := r.topics[t]
	if !ok {
		return nil
	}
	out := make([]*Client, 0, len(members))
	for c := range members {
		out = append(out, c)
	}
	return out
}

// Count returns the number of clients subscribed to the topic.
func (r *Registry) Count(t Topic) int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.topics[t])
}

// Subscribed reports whether the client is joined to the topic.
func (r *Registry) Subscribed(c *Client, t Topic) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.clientTopics[c][t]
	return ok
}
