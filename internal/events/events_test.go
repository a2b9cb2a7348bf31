package events

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/nats-io/nats.go"
)

func TestNoopPublisher(t *testing.T) {
	pub := &NoopPublisher{}
	if err := pub.Publish(context.Background(), TopicValueSet, ValueSet{}); err != nil {
		t.Fatalf("NoopPublisher.Publish returned unexpected error: %v", err)
	}
	if err := pub.Close(); err != nil {
		t.Fatalf("NoopPublisher.Close returned unexpected error: %v", err)
	}
}

func TestPublishersImplementPublisher(t *testing.T) {
	var _ Publisher = (*NoopPublisher)(nil)
	var _ Publisher = (*NATSPublisher)(nil)
	var _ Publisher = (*Recorder)(nil)
}

func TestRecorder(t *testing.T) {
	rec := &Recorder{}
	_ = rec.Publish(context.Background(), TopicMigrationBatch, MigrationBatch{Migrated: 2})
	_ = rec.Publish(context.Background(), TopicMigrationDone, MigrationDone{Migrated: 2})

	topics := rec.Topics()
	if len(topics) != 2 || topics[0] != TopicMigrationBatch || topics[1] != TopicMigrationDone {
		t.Errorf("Topics() = %v", topics)
	}
	if got := rec.Events()[0].Event.(MigrationBatch).Migrated; got != 2 {
		t.Errorf("Migrated = %d, want 2", got)
	}
}

func TestSubject(t *testing.T) {
	if got := subject("", TopicValueSet); got != "attrs.value.set" {
		t.Errorf("subject = %q", got)
	}
	if got := subject("staging", TopicValueSet); got != "staging.attrs.value.set" {
		t.Errorf("subject = %q", got)
	}
}

func TestNATSPublisher_Publish(t *testing.T) {
	url := startTestNATS(t)

	pub, err := NewNATSPublisher(url, "")
	if err != nil {
		t.Fatalf("creating publisher: %v", err)
	}
	defer pub.Close()

	nc, err := nats.Connect(url)
	if err != nil {
		t.Fatalf("connecting subscriber: %v", err)
	}
	defer nc.Close()

	ch := make(chan *nats.Msg, 1)
	sub, err := nc.ChanSubscribe(TopicValueSet, ch)
	if err != nil {
		t.Fatalf("subscribing: %v", err)
	}
	defer sub.Unsubscribe() //nolint:errcheck
	nc.Flush()

	event := ValueSet{Collection: "attributes", NodeID: 4, Key: "attr", Datatype: "dict", Rows: 21}
	if err := pub.Publish(context.Background(), TopicValueSet, event); err != nil {
		t.Fatalf("Publish error: %v", err)
	}
	pub.Flush()

	select {
	case msg := <-ch:
		var got ValueSet
		if err := json.Unmarshal(msg.Data, &got); err != nil {
			t.Fatalf("unmarshal: %v", err)
		}
		if got != event {
			t.Errorf("got %+v, want %+v", got, event)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for published message")
	}
}

func TestNATSPublisher_CanceledContext(t *testing.T) {
	url := startTestNATS(t)

	pub, err := NewNATSPublisher(url, "")
	if err != nil {
		t.Fatalf("creating publisher: %v", err)
	}
	defer pub.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := pub.Publish(ctx, TopicValueSet, ValueSet{}); err == nil {
		t.Error("expected error publishing with canceled context")
	}
}

func TestNATSPublisher_Close(t *testing.T) {
	url := startTestNATS(t)

	pub, err := NewNATSPublisher(url, "")
	if err != nil {
		t.Fatalf("creating publisher: %v", err)
	}
	if err := pub.Close(); err != nil {
		t.Fatalf("Close error: %v", err)
	}

	if err := pub.Publish(context.Background(), TopicValueSet, ValueSet{}); err == nil {
		t.Error("expected error publishing after close")
	}
}
