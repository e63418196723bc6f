package server

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
	"nhooyr.io/websocket"

	"nftlend/core/events"
	"nftlend/core/types"
)

const (
	wsWriteTimeout   = 10 * time.Second
	subscriberBuffer = 64
)

var (
	streamMetricsOnce sync.Once
	sharedDropped     metric.Int64Counter
)

func droppedCounter() metric.Int64Counter {
	streamMetricsOnce.Do(func() {
		meter := otel.GetMeterProvider().Meter("nftlend/lendingd")
		counter, err := meter.Int64Counter("nftlend.stream.dropped")
		if err != nil {
			fallback := noop.NewMeterProvider().Meter("nftlend/lendingd")
			counter, _ = fallback.Int64Counter("nftlend.stream.dropped")
		}
		sharedDropped = counter
	})
	return sharedDropped
}

type subscriber struct {
	ch     chan *types.Event
	prefix string
}

// Hub fans committed events out to live stream subscribers. Slow
// subscribers drop events rather than stall the ledger.
type Hub struct {
	mu     sync.Mutex
	nextID uint64
	subs   map[uint64]*subscriber
}

// NewHub constructs an empty hub.
func NewHub() *Hub {
	return &Hub{subs: make(map[uint64]*subscriber)}
}

// Emit implements events.Emitter.
func (h *Hub) Emit(evt events.Event) {
	payload, ok := evt.(events.Payload)
	if !ok {
		return
	}
	data := payload.Event()
	if data == nil {
		return
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, sub := range h.subs {
		if sub.prefix != "" && !strings.HasPrefix(data.Type, sub.prefix) {
			continue
		}
		select {
		case sub.ch <- data.Clone():
		default:
			droppedCounter().Add(context.Background(), 1, metric.WithAttributes(attribute.String("type", data.Type)))
		}
	}
}

// Subscribe registers a subscriber for events whose type starts with prefix.
// The returned cancel function must be called to release it.
func (h *Hub) Subscribe(prefix string) (<-chan *types.Event, func()) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.nextID++
	id := h.nextID
	sub := &subscriber{ch: make(chan *types.Event, subscriberBuffer), prefix: strings.TrimSpace(prefix)}
	h.subs[id] = sub
	var once sync.Once
	return sub.ch, func() {
		once.Do(func() {
			h.mu.Lock()
			delete(h.subs, id)
			h.mu.Unlock()
		})
	}
}

// Subscribers reports the number of live subscriptions.
func (h *Hub) Subscribers() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subs)
}

func (s *Server) handleEventStream(w http.ResponseWriter, r *http.Request) {
	if s.hub == nil {
		writeJSON(w, http.StatusServiceUnavailable, errorResponse{Error: "event stream unavailable"})
		return
	}
	prefix := strings.TrimSpace(r.URL.Query().Get("type"))
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{OriginPatterns: []string{"*"}})
	if err != nil {
		return
	}
	defer conn.Close(websocket.StatusNormalClosure, "stream closed")
	ctx := conn.CloseRead(r.Context())
	if err := s.streamEvents(ctx, conn, prefix); err != nil {
		if status := websocket.CloseStatus(err); status == -1 {
			_ = conn.Close(websocket.StatusInternalError, "stream error")
		}
	}
}

func (s *Server) streamEvents(ctx context.Context, conn *websocket.Conn, prefix string) error {
	updates, cancel := s.hub.Subscribe(prefix)
	defer cancel()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case evt, ok := <-updates:
			if !ok {
				return nil
			}
			if err := writeEvent(ctx, conn, evt); err != nil {
				return err
			}
		}
	}
}

func writeEvent(ctx context.Context, conn *websocket.Conn, evt *types.Event) error {
	data, err := json.Marshal(evt)
	if err != nil {
		return err
	}
	writeCtx, cancel := context.WithTimeout(ctx, wsWriteTimeout)
	defer cancel()
	return conn.Write(writeCtx, websocket.MessageText, data)
}
