package router

import (
	"testing"
	"time"
)

func TestNotifier_PublishNoSubscribers(t *testing.T) {
	n := NewNotifier(100)
	// Should not panic and should not block
	n.Publish(Notification{Type: RelationCreated, Relation: 10, Name: "events"})
}

func TestNotifier_SubscribeReceivesNotification(t *testing.T) {
	n := NewNotifier(100)
	sub := n.Subscribe("sub-1")

	n.Publish(Notification{Type: PartitionAttached, Relation: 10, Name: "events"})

	select {
	case notif := <-sub.Ch:
		if notif.Name != "events" {
			t.Errorf("expected name 'events', got '%s'", notif.Name)
		}
		if notif.Type != PartitionAttached {
			t.Errorf("expected type %v, got %v", PartitionAttached, notif.Type)
		}
		if notif.Timestamp == 0 {
			t.Error("expected timestamp to be stamped on publish")
		}
	case <-time.After(time.Second):
		t.Fatal("subscriber did not receive notification within timeout")
	}
}

func TestNotifier_FilterByNamePrefix(t *testing.T) {
	n := NewNotifier(100)
	sub := n.Subscribe("sub-2", "Events")

	n.Publish(Notification{Type: RelationCreated, Relation: 20, Name: "users"})
	n.Publish(Notification{Type: RelationCreated, Relation: 10, Name: "events_archive"})

	select {
	case notif := <-sub.Ch:
		if notif.Relation != 10 {
			t.Errorf("expected relation 10, got %d", notif.Relation)
		}
	case <-time.After(time.Second):
		t.Fatal("matching notification was not delivered")
	}

	select {
	case notif := <-sub.Ch:
		t.Fatalf("received unexpected notification: %+v", notif)
	default:
	}
}

func TestNotifier_FullChannelDropsNotification(t *testing.T) {
	n := NewNotifier(1)
	sub := n.Subscribe("sub-3")
	sub.Ch <- Notification{Name: "fill"}

	done := make(chan struct{})
	go func() {
		n.Publish(Notification{Type: RelationDropped, Relation: 10, Name: "events"})
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(100 * time.Millisecond):
		t.Fatal("publish blocked when channel was full")
	}

	if got := n.Dropped(); got != 1 {
		t.Errorf("expected 1 dropped notification, got %d", got)
	}
	if notif := <-sub.Ch; notif.Name != "fill" {
		t.Errorf("expected 'fill', got '%s'", notif.Name)
	}
}

func TestNotifier_UnsubscribeClosesChannel(t *testing.T) {
	n := NewNotifier(100)
	sub := n.Subscribe("test-sub")

	n.Unsubscribe("test-sub")

	select {
	case _, ok := <-sub.Ch:
		if ok {
			t.Fatal("channel should be closed after unsubscribe")
		}
	case <-time.After(100 * time.Millisecond):
		t.Fatal("channel was not closed within timeout")
	}

	// Unknown ids are ignored.
	n.Unsubscribe("test-sub")
}

func TestNotifier_ResubscribeReplacesChannel(t *testing.T) {
	n := NewNotifier(10)
	first := n.Subscribe("dup")
	second := n.Subscribe("dup")

	if _, ok := <-first.Ch; ok {
		t.Fatal("replaced subscriber channel should be closed")
	}

	n.Publish(Notification{Type: TableRegistered, Relation: 5, Name: "plain"})
	if notif := <-second.Ch; notif.Relation != 5 {
		t.Errorf("expected relation 5, got %d", notif.Relation)
	}
}

func TestNotifier_AutoIDsAreUnique(t *testing.T) {
	n := NewNotifier(1)
	a := n.Subscribe("")
	b := n.Subscribe("")
	if a.ID == b.ID {
		t.Fatalf("expected distinct ids, both were %s", a.ID)
	}
}

func TestChangeTypeString(t *testing.T) {
	cases := map[ChangeType]string{
		RelationCreated:   "relation_created",
		TableRegistered:   "table_registered",
		PartitionAttached: "partition_attached",
		RelationDropped:   "relation_dropped",
		ChangeType(99):    "unknown",
	}
	for ct, want := range cases {
		if got := ct.String(); got != want {
			t.Errorf("%d: expected %s, got %s", ct, want, got)
		}
	}
}
