package events

import (
	"context"
	"testing"
	"time"

	natsserver "github.com/nats-io/nats-server/v2/server"
)

// startTestNATS starts an embedded NATS server and returns its client URL.
func startTestNATS(t *testing.T) string {
	t.Helper()
	opts := &natsserver.Options{Host: "127.0.0.1", Port: -1}
	srv, err := natsserver.NewServer(opts)
	if err != nil {
		t.Fatalf("starting embedded NATS: %v", err)
	}
	srv.Start()
	t.Cleanup(srv.Shutdown)
	if !srv.ReadyForConnections(5 * time.Second) {
		t.Fatal("embedded NATS not ready")
	}
	return srv.ClientURL()
}

func TestNATSSubscriber_ImplementsSubscriber(t *testing.T) {
	var _ Subscriber = (*NATSSubscriber)(nil)
}

func TestNATSSubscriber_NamespacedWildcard(t *testing.T) {
	url := startTestNATS(t)

	pub, err := NewNATSPublisher(url, "prod")
	if err != nil {
		t.Fatalf("creating publisher: %v", err)
	}
	defer pub.Close()

	sub, err := NewNATSSubscriber(url, "prod")
	if err != nil {
		t.Fatalf("creating subscriber: %v", err)
	}
	defer sub.Close()

	ch, cancel, err := sub.Subscribe("attrs.migration.>")
	if err != nil {
		t.Fatalf("subscribing: %v", err)
	}
	defer cancel()

	ctx := context.Background()
	_ = pub.Publish(ctx, TopicValueSet, ValueSet{Key: "ignored"})
	_ = pub.Publish(ctx, TopicMigrationBatch, MigrationBatch{RunID: "mig-1"})
	_ = pub.Publish(ctx, TopicMigrationDone, MigrationDone{RunID: "mig-1"})
	pub.Flush()

	for _, want := range []string{"prod." + TopicMigrationBatch, "prod." + TopicMigrationDone} {
		select {
		case msg := <-ch:
			if msg.Subject != want {
				t.Errorf("subject = %q, want %q", msg.Subject, want)
			}
		case <-time.After(time.Second):
			t.Fatalf("timed out waiting for %s", want)
		}
	}

	select {
	case msg := <-ch:
		t.Errorf("unexpected message on %s", msg.Subject)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestNATSSubscriber_Cancel(t *testing.T) {
	url := startTestNATS(t)

	sub, err := NewNATSSubscriber(url, "")
	if err != nil {
		t.Fatalf("creating subscriber: %v", err)
	}
	defer sub.Close()

	ch, cancel, err := sub.Subscribe("attrs.>")
	if err != nil {
		t.Fatalf("subscribing: %v", err)
	}

	cancel()
	cancel() // second call must not panic

	if _, ok := <-ch; ok {
		t.Fatal("expected channel to be closed after cancel")
	}
}
