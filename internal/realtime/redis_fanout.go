package realtime

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/agnox/producer/internal/infra"
)

// RedisFanOut satisfies Hub's FanOut interface, republishing local
// broadcasts to other Producer instances over Redis Pub/Sub and
// re-injecting remote broadcasts into this instance's rooms. Grounded on
// internal/infra/redis_adapter.go's Subscribe/Publish pair.
type RedisFanOut struct {
	adapter *infra.GoRedisAdapter
	prefix  string
	hub     *Hub
}

type fanOutMessage struct {
	Room  string `json:"room"`
	Event Event  `json:"event"`
}

// NewRedisFanOut subscribes to the wildcard-free channel set the hub
// actually uses: a single shared channel carrying {room, event} envelopes,
// since go-redis's pattern subscribe is unnecessary for the bounded set of
// live org rooms.
func NewRedisFanOut(adapter *infra.GoRedisAdapter, prefix string, hub *Hub) (*RedisFanOut, error) {
	f := &RedisFanOut{adapter: adapter, prefix: prefix, hub: hub}
	_, err := adapter.Subscribe(context.Background(), prefix+"broadcast", f.onMessage)
	if err != nil {
		return nil, err
	}
	return f, nil
}

func (f *RedisFanOut) onMessage(payload []byte) {
	var msg fanOutMessage
	if err := json.Unmarshal(payload, &msg); err != nil {
		slog.Warn("realtime: fanout: malformed message", "error", err)
		return
	}
	f.hub.DeliverLocal(msg.Room, msg.Event)
}

// Publish implements Hub.FanOut.
func (f *RedisFanOut) Publish(room string, event Event) {
	body, err := json.Marshal(fanOutMessage{Room: room, Event: event})
	if err != nil {
		slog.Warn("realtime: fanout: marshal failed", "error", err)
		return
	}
	if err := f.adapter.Publish(context.Background(), f.prefix+"broadcast", body); err != nil {
		slog.Warn("realtime: fanout: publish failed", "error", err)
	}
}
