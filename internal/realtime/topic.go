// Package realtime provides WebSocket fan-out of engagement events to
// topic subscribers, with optional Redis pub/sub for multi-instance delivery.
package realtime

import (
	"fmt"
	"strconv"
	"strings"
)

// TopicKind discriminates the addressable stream types.
type TopicKind string

const (
	// KindPost is the stream of engagement events for a single post.
	KindPost TopicKind = "post"
	// KindUser is a user's personal stream (notifications, counters).
	KindUser TopicKind = "user"
)

// Topic addresses a single event stream. The zero value is invalid; construct
// via PostTopic or UserTopic so kind and ID never mix.
type Topic struct {
	Kind TopicKind
	ID   uint
}

// PostTopic returns the topic for a post's engagement stream.
func PostTopic(postID uint) Topic {
	return Topic{Kind: KindPost, ID: postID}
}

// UserTopic returns a user's personal stream topic.
func UserTopic(userID uint) Topic {
	return Topic{Kind: KindUser, ID: userID}
}

// String renders the topic in its canonical injective form, e.g. "post:17".
func (t Topic) String() string {
	return string(t.Kind) + ":" + strconv.FormatUint(uint64(t.ID), 10)
}

// Valid reports whether the topic has a known kind and a nonzero ID.
func (t Topic) Valid() bool {
	return (t.Kind == KindPost || t.Kind == KindUser) && t.ID != 0
}

// channelPrefix namespaces topic channels in Redis.
const channelPrefix = "rooms:"

// Channel returns the Redis pub/sub channel carrying this topic's events.
func (t Topic) Channel() string {
	return channelPrefix + t.String()
}

// ParseTopic parses the canonical "<kind>:<id>" form.
func ParseTopic(s string) (Topic, error) {
	kind, idStr, ok := strings.Cut(s, ":")
	if !ok {
		return Topic{}, fmt.Errorf("malformed topic %q", s)
	}
	id, err := strconv.ParseUint(idStr, 10, 32)
	if err != nil || id == 0 {
		return Topic{}, fmt.Errorf("invalid topic id in %q", s)
	}
	t := Topic{Kind: TopicKind(kind), ID: uint(id)}
	if !t.Valid() {
		return Topic{}, fmt.Errorf("unknown topic kind %q", kind)
	}
	return t, nil
}

// TopicFromChannel recovers the topic from a Redis channel name.
func TopicFromChannel(channel string) (Topic, error) {
	s, ok := strings.CutPrefix(channel, channelPrefix)
	if !ok {
		return Topic{}, fmt.Errorf("channel %q outside topic namespace", channel)
	}
	return ParseTopic(s)
}
