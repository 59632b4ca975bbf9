package event

import (
	"context"
	"testing"
	"time"

	"skycover/internal/models"
	"skycover/internal/repository"
	"skycover/internal/repository/memory"
)

func TestRecordPersistsEvent(t *testing.T) {
	store := memory.New()
	hub := NewHub(store, nil)

	evt, err := hub.Record(context.Background(), nil, models.EventPolicyCreated, map[string]any{"policy_id": 1})
	if err != nil {
		t.Fatalf("record: %v", err)
	}
	if evt.ID == "" || evt.Type != models.EventPolicyCreated {
		t.Fatalf("event=%+v", evt)
	}
	items, err := store.ListEvents(context.Background(), repository.ListEventsParams{Limit: 10})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(items) != 1 || items[0].ID != evt.ID {
		t.Fatalf("stored events=%+v", items)
	}
}

func TestSubscribeReceivesBroadcast(t *testing.T) {
	hub := NewHub(memory.New(), nil)
	ch, cancel := hub.Subscribe(4)
	defer cancel()

	hub.Broadcast(models.EngineEvent{ID: "a", Type: models.EventClaimProcessed})

	select {
	case evt := <-ch:
		if evt.ID != "a" {
			t.Fatalf("event id=%s want=a", evt.ID)
		}
	case <-time.After(time.Second):
		t.Fatalf("no event delivered")
	}
}

func TestBroadcastDropsWhenSubscriberFull(t *testing.T) {
	hub := NewHub(memory.New(), nil)
	_, cancel := hub.Subscribe(1)
	defer cancel()

	hub.Broadcast(
		models.EngineEvent{ID: "a"},
		models.EngineEvent{ID: "b"},
		models.EngineEvent{ID: "c"},
	)
	if hub.DroppedFanout() != 2 {
		t.Fatalf("dropped=%d want=2", hub.DroppedFanout())
	}
}

func TestCancelUnsubscribes(t *testing.T) {
	hub := NewHub(memory.New(), nil)
	ch, cancel := hub.Subscribe(1)
	cancel()

	if _, open := <-ch; open {
		t.Fatalf("channel still open after cancel")
	}
	// Broadcasting after cancel must not panic on the closed channel.
	hub.Broadcast(models.EngineEvent{ID: "a"})
}
