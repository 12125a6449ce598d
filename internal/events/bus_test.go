package events

import (
	"encoding/json"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPublishFanOut(t *testing.T) {
	bus := NewBus(nil)
	a := bus.Subscribe("a", 4)
	b := bus.Subscribe("b", 4)
	defer a.Close()
	defer b.Close()

	bus.Publish(Status("alice", "online", nil))

	for _, s := range []*Subscription{a, b} {
		ev := <-s.C()
		assert.Equal(t, StatusChanged, ev.Type)
		assert.Equal(t, "alice", ev.Account)
		assert.NotEmpty(t, ev.ID)
		assert.False(t, ev.Timestamp.IsZero())
	}
}

func TestPublishDropsWhenFull(t *testing.T) {
	bus := NewBus(nil)
	var mu sync.Mutex
	drops := map[string]int{}
	bus.OnDrop(func(name string) {
		mu.Lock()
		drops[name]++
		mu.Unlock()
	})

	slow := bus.Subscribe("slow", 1)
	defer slow.Close()

	bus.Publish(NewItems("alice", 1))
	bus.Publish(NewItems("alice", 2))
	bus.Publish(NewItems("alice", 3))

	assert.Equal(t, uint64(2), slow.Dropped())
	assert.Equal(t, 2, drops["slow"])

	ev := <-slow.C()
	assert.Equal(t, ItemsData{Count: 1}, ev.Data)
}

func TestLateSubscriberGetsNoReplay(t *testing.T) {
	bus := NewBus(nil)
	bus.Publish(NewOffer("alice", "o-1"))

	s := bus.Subscribe("late", 4)
	defer s.Close()

	select {
	case ev := <-s.C():
		t.Fatalf("unexpected event %v", ev)
	default:
	}
}

func TestCloseUnsubscribes(t *testing.T) {
	bus := NewBus(nil)
	s := bus.Subscribe("x", 1)
	require.Equal(t, 1, bus.Subscribers())

	s.Close()
	s.Close()
	assert.Equal(t, 0, bus.Subscribers())

	_, ok := <-s.C()
	assert.False(t, ok)

	bus.Publish(Challenge("alice", "email"))
}

func TestEnvelopeJSON(t *testing.T) {
	ev := Status("alice", "failed", errors.New("boom"))
	ev.ID = "id-1"

	raw, err := json.Marshal(ev)
	require.NoError(t, err)

	var decoded map[string]any
	require.NoError(t, json.Unmarshal(raw, &decoded))
	assert.Equal(t, "statusChanged", decoded["type"])
	assert.Equal(t, "alice", decoded["account"])
	assert.Equal(t, map[string]any{"state": "failed", "error": "boom"}, decoded["data"])
	assert.Contains(t, decoded, "timestamp")
}

func TestInventoryEventNeverNil(t *testing.T) {
	ev := Inventory("alice", nil, false)
	data := ev.Data.(InventoryData)
	assert.NotNil(t, data.Items)
	assert.Equal(t, 0, data.Count)
}
