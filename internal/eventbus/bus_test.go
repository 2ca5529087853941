package eventbus

import (
	"testing"
	"time"
)

func TestPublishFansOutAndDropsWhenFull(t *testing.T) {
	t.Parallel()
	b := New()
	a, unsubA := b.Subscribe(1)
	c, unsubC := b.Subscribe(4)
	defer unsubC()

	b.Publish(Event{Type: "one"})
	b.Publish(Event{Type: "two"})

	if e := <-a; e.Type != "one" || e.Time.IsZero() {
		t.Fatalf("subscriber a got %+v", e)
	}
	if got := b.Dropped(); got != 1 {
		t.Fatalf("Dropped = %d, want 1", got)
	}
	for _, want := range []string{"one", "two"} {
		select {
		case e := <-c:
			if e.Type != want {
				t.Fatalf("subscriber c got %q, want %q", e.Type, want)
			}
		case <-time.After(time.Second):
			t.Fatalf("subscriber c missing %q", want)
		}
	}

	unsubA()
	unsubA()
	if _, ok := <-a; ok {
		t.Fatal("channel should be closed after unsubscribe")
	}
	b.Publish(Event{Type: "after"})
}
