// Package router provides an in-process bus that carries catalog change
// notifications to the components caching relation schemes.
package router

import (
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/arkilian/partprune/pkg/types"
)

// ChangeType identifies what happened to a relation.
type ChangeType int

const (
	RelationCreated ChangeType = iota
	TableRegistered
	PartitionAttached
	RelationDropped
)

func (t ChangeType) String() string {
	switch t {
	case RelationCreated:
		return "relation_created"
	case TableRegistered:
		return "table_registered"
	case PartitionAttached:
		return "partition_attached"
	case RelationDropped:
		return "relation_dropped"
	default:
		return "unknown"
	}
}

// Notification describes one committed catalog change.
type Notification struct {
	Type      ChangeType
	Relation  types.RelationID
	Name      string
	Timestamp int64
}

// Notifier fans catalog changes out to subscribers.
type Notifier struct {
	subscribers sync.Map
	bufferSize  int
	dropped     atomic.Int64
}

// NewNotifier creates a notifier whose subscriber channels hold bufferSize
// notifications.
func NewNotifier(bufferSize int) *Notifier {
	return &Notifier{
		bufferSize: bufferSize,
	}
}

// Publish sends a notification to every matching subscriber. It never
// blocks: a notification for a full subscriber channel is dropped.
func (n *Notifier) Publish(notif Notification) {
	if notif.Timestamp == 0 {
		notif.Timestamp = time.Now().UnixNano()
	}
	n.subscribers.Range(func(_, value interface{}) bool {
		sub := value.(*Subscriber)
		if sub.matches(notif.Name) {
			select {
			case sub.Ch <- notif:
			default:
				n.dropped.Add(1)
			}
		}
		return true
	})
}

// Subscribe registers a subscriber. Filters are case-insensitive relation
// name prefixes; no filters receives everything.
func (n *Notifier) Subscribe(id string, filters ...string) *Subscriber {
	if id == "" {
		id = generateSubscriberID()
	}
	lowered := make([]string, len(filters))
	for i, f := range filters {
		lowered[i] = strings.ToLower(f)
	}
	sub := &Subscriber{
		ID:      id,
		Filters: lowered,
		Ch:      make(chan Notification, n.bufferSize),
	}
	if old, loaded := n.subscribers.Swap(id, sub); loaded {
		close(old.(*Subscriber).Ch)
	}
	return sub
}

// Unsubscribe removes a subscriber and closes its channel.
func (n *Notifier) Unsubscribe(id string) {
	if value, ok := n.subscribers.LoadAndDelete(id); ok {
		close(value.(*Subscriber).Ch)
	}
}

// Dropped returns the number of notifications discarded because a
// subscriber was not keeping up.
func (n *Notifier) Dropped() int64 {
	return n.dropped.Load()
}

// Subscriber receives notifications on Ch.
type Subscriber struct {
	ID      string
	Filters []string
	Ch      chan Notification
}

func (s *Subscriber) matches(name string) bool {
	if len(s.Filters) == 0 {
		return true
	}
	name = strings.ToLower(name)
	for _, f := range s.Filters {
		if strings.HasPrefix(name, f) {
			return true
		}
	}
	return false
}

var subscriberSeq atomic.Uint64

func generateSubscriberID() string {
	return "sub_" + strconv.FormatUint(subscriberSeq.Add(1), 10)
}
