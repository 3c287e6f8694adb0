package controller

import (
	"context"
	"encoding/json"
	"fmt"
	"math/rand"
	"net/http"
	"runtime/debug"
	"sync"
	"time"

	"github.com/canopy-network/ammx/pkg/ingest"
	"github.com/canopy-network/ammx/pkg/utils"
	"github.com/gorilla/websocket"
	"github.com/puzpuzpuz/xsync/v4"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const (
	// wildcard subscribes a client to every pair.
	wildcard = "*"

	msgPairEvents  = "pair.events"
	msgSubscribed  = "subscribed"
	msgUnsubscribe = "unsubscribed"
	msgError       = "error"
	msgInfo        = "info"

	readTimeout  = 60 * time.Second
	pingInterval = 30 * time.Second
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 4096,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// ClientMessage represents messages sent by WebSocket clients.
type ClientMessage struct {
	Action string `json:"action"` // "subscribe" or "unsubscribe"
	Pair   string `json:"pair"`   // pair address, or "*" for all pairs
}

// ServerMessage represents messages sent to WebSocket clients.
type ServerMessage struct {
	Type    string      `json:"type"` // "pair.events", "subscribed", "unsubscribed", "error", "info"
	Payload interface{} `json:"payload"`
}

// clientSubscriptions tracks the pairs a client is subscribed to.
type clientSubscriptions struct {
	pairs *xsync.Map[string, struct{}]
}

func newClientSubscriptions() *clientSubscriptions {
	return &clientSubscriptions{pairs: xsync.NewMap[string, struct{}]()}
}

func (cs *clientSubscriptions) subscribe(pair string) {
	cs.pairs.Store(pair, struct{}{})
}

func (cs *clientSubscriptions) unsubscribe(pair string) {
	cs.pairs.Delete(pair)
}

// isSubscribed reports whether pair is subscribed. Wildcard (*) matches all pairs.
func (cs *clientSubscriptions) isSubscribed(pair string) bool {
	if _, ok := cs.pairs.Load(wildcard); ok {
		return true
	}
	_, ok := cs.pairs.Load(pair)
	return ok
}

// HandleWebSocket upgrades the connection and streams ingest notifications.
//
// Protocol:
// Client sends: {"action": "subscribe", "pair": "0x4ad4..."}   // one pair
// Client sends: {"action": "subscribe", "pair": "*"}           // every pair
// Client sends: {"action": "unsubscribe", "pair": "0x4ad4..."}
//
// Server sends:
// - {"type": "pair.events", "payload": {"pairAddress": "0x...", "inserted": 3, "cursor": "..."}}
// - {"type": "subscribed", "payload": {"pair": "0x..."}}
// - {"type": "unsubscribed", "payload": {"pair": "0x..."}}
// - {"type": "info" | "error", "payload": {"message": "..."}}
func (c *Controller) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	if c.App.RedisClient == nil {
		http.Error(w, "Real-time events not available (Redis disabled)", http.StatusServiceUnavailable)
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		c.App.Logger.Error("Failed to upgrade WebSocket connection", zap.Error(err))
		return
	}
	defer func() {
		if err := conn.Close(); err != nil {
			c.App.Logger.Debug("Failed to close WebSocket connection", zap.Error(err))
		}
	}()

	remote := r.RemoteAddr
	c.App.Logger.Info("WebSocket client connected", zap.String("remote_addr", remote))

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	subs := newClientSubscriptions()
	send := make(chan ServerMessage, 256)

	var wg sync.WaitGroup
	c.goGuarded(&wg, "redis subscriber", remote, cancel, func() { c.subscribeToRedis(ctx, send, subs) })
	c.goGuarded(&wg, "ping ticker", remote, cancel, func() { c.sendPings(ctx, conn) })

	var writer sync.WaitGroup
	c.goGuarded(&writer, "message writer", remote, cancel, func() { c.writeMessages(conn, send) })

	// blocks until the connection closes
	c.readClientMessages(ctx, conn, cancel, subs, send)

	// producers first, then the writer drains what is left
	cancel()
	wg.Wait()
	close(send)
	writer.Wait()

	c.App.Logger.Info("WebSocket client disconnected", zap.String("remote_addr", remote))
}

// goGuarded runs fn in a goroutine tracked by wg. A panic is logged and cancels the connection.
func (c *Controller) goGuarded(wg *sync.WaitGroup, name, remote string, cancel context.CancelFunc, fn func()) {
	wg.Add(1)
	go func() {
		defer wg.Done()
		defer func() {
			if rec := recover(); rec != nil {
				c.App.Logger.Error("Panic in WebSocket goroutine",
					zap.String("goroutine", name),
					zap.Any("panic", rec),
					zap.String("stack", string(debug.Stack())),
					zap.String("remote_addr", remote))
				cancel()
			}
		}()
		fn()
	}()
}

// push queues msg unless the connection is shutting down.
func push(ctx context.Context, send chan<- ServerMessage, msg ServerMessage) bool {
	select {
	case send <- msg:
		return true
	case <-ctx.Done():
		return false
	}
}

// subscribeToRedis follows the ingest notification channel and forwards the events the
// client subscribed to. A lost subscription is retried with exponential backoff and jitter.
func (c *Controller) subscribeToRedis(ctx context.Context, send chan<- ServerMessage, subs *clientSubscriptions) {
	const (
		initialBackoff = 1 * time.Second
		maxBackoff     = 30 * time.Second
		backoffFactor  = 2.0
		jitterFactor   = 0.1
	)

	backoff := initialBackoff
	for attempt := 1; ; attempt++ {
		if ctx.Err() != nil {
			return
		}

		err := c.attemptRedisSubscription(ctx, send, subs, attempt)
		if ctx.Err() != nil {
			return
		}
		if err != nil {
			c.App.Logger.Warn("Redis subscription failed, will retry",
				zap.Error(err),
				zap.Int("attempt", attempt),
				zap.Duration("backoff", backoff))
		} else {
			c.App.Logger.Warn("Redis subscription channel closed, will retry",
				zap.Int("attempt", attempt),
				zap.Duration("backoff", backoff))
		}

		if !push(ctx, send, ServerMessage{
			Type: msgError,
			Payload: map[string]interface{}{
				"message":     "Redis connection lost, attempting to reconnect...",
				"retryIn":     backoff.Seconds(),
				"attempt":     attempt,
				"recoverable": true,
			},
		}) {
			return
		}

		select {
		case <-time.After(backoff):
		case <-ctx.Done():
			return
		}
		backoff = calculateNextBackoff(backoff, maxBackoff, backoffFactor, jitterFactor)
	}
}

// attemptRedisSubscription runs one subscription until it fails or ctx ends. It returns an
// error when the subscription could not be confirmed and nil when an established one closed.
func (c *Controller) attemptRedisSubscription(ctx context.Context, send chan<- ServerMessage, subs *clientSubscriptions, attempt int) error {
	pubsub := c.App.RedisClient.Subscribe(ctx, ingest.PairEventsChannel)
	defer func() {
		if err := pubsub.Close(); err != nil {
			c.App.Logger.Debug("Error closing Redis subscription", zap.Error(err))
		}
	}()

	receiveCtx, receiveCancel := context.WithTimeout(ctx, 5*time.Second)
	defer receiveCancel()
	if _, err := pubsub.Receive(receiveCtx); err != nil {
		return fmt.Errorf("failed to confirm Redis subscription: %w", err)
	}

	c.App.Logger.Debug("Subscribed to Redis channel",
		zap.String("channel", ingest.PairEventsChannel),
		zap.Int("attempt", attempt))

	if !push(ctx, send, ServerMessage{
		Type:    msgInfo,
		Payload: map[string]interface{}{"message": "Redis connection established", "attempt": attempt},
	}) {
		return ctx.Err()
	}

	return c.processRedisMessages(ctx, pubsub.Channel(), send, subs)
}

// processRedisMessages forwards notifications until ch closes (nil) or ctx ends (ctx error).
func (c *Controller) processRedisMessages(ctx context.Context, ch <-chan *redis.Message, send chan<- ServerMessage, subs *clientSubscriptions) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case msg, ok := <-ch:
			if !ok {
				return nil
			}

			var notice ingest.PairEventsNotice
			if err := json.Unmarshal([]byte(msg.Payload), &notice); err != nil || notice.PairAddress == "" {
				c.App.Logger.Warn("Dropping malformed pair events notice",
					zap.String("channel", msg.Channel),
					zap.Error(err))
				continue
			}

			// server-side filtering
			if !subs.isSubscribed(notice.PairAddress) {
				continue
			}

			if !push(ctx, send, ServerMessage{Type: msgPairEvents, Payload: notice}) {
				return ctx.Err()
			}
		}
	}
}

// calculateNextBackoff grows current by factor, caps it at max and applies +/- jitterFactor jitter.
// The result never drops below current.
func calculateNextBackoff(current, max time.Duration, factor, jitterFactor float64) time.Duration {
	next := time.Duration(float64(current) * factor)
	if next > max {
		next = max
	}

	jitter := float64(next) * jitterFactor * (2*rand.Float64() - 1)
	next = time.Duration(float64(next) + jitter)

	if next < current {
		next = current
	}
	if next > max {
		next = max
	}
	return next
}

// sendPings sends periodic WebSocket ping frames. The client's pong resets the read deadline.
func (c *Controller) sendPings(ctx context.Context, conn *websocket.Conn) {
	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := conn.WriteControl(websocket.PingMessage, []byte{}, time.Now().Add(10*time.Second)); err != nil {
				c.App.Logger.Debug("Failed to send ping", zap.Error(err))
				return
			}
		}
	}
}

// writeMessages writes queued messages until send is closed.
func (c *Controller) writeMessages(conn *websocket.Conn, send <-chan ServerMessage) {
	for msg := range send {
		if err := conn.WriteJSON(msg); err != nil {
			c.App.Logger.Debug("Failed to write WebSocket message", zap.Error(err))
			// keep draining so producers never block
			for range send {
			}
			return
		}
	}
}

// readClientMessages handles subscription requests until the connection closes.
func (c *Controller) readClientMessages(ctx context.Context, conn *websocket.Conn, cancel context.CancelFunc, subs *clientSubscriptions, send chan<- ServerMessage) {
	defer cancel()

	if err := conn.SetReadDeadline(time.Now().Add(readTimeout)); err != nil {
		c.App.Logger.Error("Failed to set read deadline", zap.Error(err))
		return
	}
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(readTimeout))
	})

	for ctx.Err() == nil {
		var msg ClientMessage
		if err := conn.ReadJSON(&msg); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseAbnormalClosure) {
				c.App.Logger.Warn("WebSocket read error", zap.Error(err))
			}
			return
		}
		if err := conn.SetReadDeadline(time.Now().Add(readTimeout)); err != nil {
			return
		}

		pair := msg.Pair
		if pair != wildcard {
			pair = utils.NormalizeHex(pair)
		}

		var reply ServerMessage
		switch {
		case msg.Action != "subscribe" && msg.Action != "unsubscribe":
			reply = ServerMessage{Type: msgError, Payload: map[string]string{"message": "unknown action: " + msg.Action}}
		case pair == "":
			reply = ServerMessage{Type: msgError, Payload: map[string]string{"message": "pair is required"}}
		case msg.Action == "subscribe":
			subs.subscribe(pair)
			reply = ServerMessage{Type: msgSubscribed, Payload: map[string]string{"pair": pair}}
		default:
			subs.unsubscribe(pair)
			reply = ServerMessage{Type: msgUnsubscribe, Payload: map[string]string{"pair": pair}}
		}
		if !push(ctx, send, reply) {
			return
		}
	}
}
