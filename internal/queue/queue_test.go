package queue

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestInMemoryPublishConsume(t *testing.T) {
	q := NewInMemory(2)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := q.Publish(ctx, Message{Type: TypeProfileSaved, Body: []byte("user_1")}); err != nil {
		t.Fatalf("publish: %v", err)
	}
	if err := q.Publish(ctx, Message{Type: TypeProfileDeleted, Body: []byte("user_2")}); err != nil {
		t.Fatalf("publish: %v", err)
	}
	if err := q.Publish(ctx, Message{Type: TypeProfileSaved}); !errors.Is(err, ErrFull) {
		t.Fatalf("expected ErrFull, got %v", err)
	}

	msgs, err := q.Consume(ctx)
	if err != nil {
		t.Fatalf("consume: %v", err)
	}
	for _, want := range []string{"user_1", "user_2"} {
		select {
		case msg := <-msgs:
			if string(msg.Body) != want {
				t.Fatalf("got %s, want %s", msg.Body, want)
			}
		case <-time.After(time.Second):
			t.Fatalf("timed out waiting for %s", want)
		}
	}

	cancel()
	select {
	case _, ok := <-msgs:
		if ok {
			t.Fatal("expected closed channel after cancel")
		}
	case <-time.After(time.Second):
		t.Fatal("consumer did not stop")
	}
}

func TestInMemoryPublishCanceled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := NewInMemory(1).Publish(ctx, Message{}); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}

func TestEncodeDecode(t *testing.T) {
	msg := decode(encode(Message{Type: TypeProfileSaved, Body: []byte("user_1|x")}))
	if msg.Type != TypeProfileSaved || string(msg.Body) != "user_1|x" {
		t.Fatalf("unexpected %+v", msg)
	}
	if msg := decode("legacy"); msg.Type != "" || string(msg.Body) != "legacy" {
		t.Fatalf("untyped payload: %+v", msg)
	}
}
