package repository

import (
	"context"
	"sync"
	"time"

	"campus_chat_service/internal/chat/domain"
	"campus_chat_service/pkg/logger"

	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"
)

const (
	redisSubscribeTimeout = 5 * time.Second
	redisDispatchBuffer   = 256
	redisHandlerBuffer    = 100
)

type redisHandler struct {
	queue chan []byte
	done  chan struct{}
}

type redisRoom struct {
	handlers map[uint64]*redisHandler
	// 等待中的 SUBSCRIBE 回覆數，歸零時 ready 關閉
	pending int
	ready   chan struct{}
}

// RedisPubSub broker over redis pub/sub, shared by every chat_service instance.
// All rooms of one instance share a single subscriber connection.
type RedisPubSub struct {
	client *redis.Client

	mu     sync.Mutex
	ps     *redis.PubSub
	rooms  map[string]*redisRoom
	nextID uint64
}

// NewRedisPubSub create redis broker
func NewRedisPubSub(client *redis.Client) *RedisPubSub {
	return &RedisPubSub{client: client, rooms: make(map[string]*redisRoom)}
}

// Publish push payload to channel, nobody listening is not an error
func (r *RedisPubSub) Publish(ctx context.Context, channel string, payload []byte) error {
	if err := r.client.Publish(ctx, channel, payload).Err(); err != nil {
		return domain.NewTransientError("redis publish "+channel, err)
	}
	return nil
}

// Subscribe 註冊 handler，直到 ctx 結束；同一 channel 的第一個 handler 才會送出 SUBSCRIBE
func (r *RedisPubSub) Subscribe(ctx context.Context, channel string, handler func(payload []byte)) error {
	r.mu.Lock()
	ps := r.conn()
	room, ok := r.rooms[channel]
	if !ok {
		room = &redisRoom{handlers: make(map[uint64]*redisHandler), ready: make(chan struct{})}
		r.rooms[channel] = room
	}
	if len(room.handlers) == 0 {
		room.pending++
		if err := ps.Subscribe(ctx, channel); err != nil {
			room.pending--
			if len(room.handlers) == 0 {
				delete(r.rooms, channel)
			}
			r.mu.Unlock()
			return domain.NewTransientError("redis subscribe "+channel, err)
		}
	}
	r.nextID++
	id := r.nextID
	h := &redisHandler{queue: make(chan []byte, redisHandlerBuffer), done: make(chan struct{})}
	room.handlers[id] = h
	ready := room.ready
	r.mu.Unlock()

	// 等待訂閱確認，確保之後的 publish 不會遺失
	timer := time.NewTimer(redisSubscribeTimeout)
	defer timer.Stop()
	select {
	case <-ready:
	case <-ctx.Done():
		r.remove(channel, id)
		return domain.NewTransientError("redis subscribe "+channel, ctx.Err())
	case <-timer.C:
		r.remove(channel, id)
		return domain.NewTransientError("redis subscribe "+channel, context.DeadlineExceeded)
	}

	go h.run(handler)
	go func() {
		<-ctx.Done()
		r.remove(channel, id)
	}()
	return nil
}

// Close drop the subscriber connection and every room
func (r *RedisPubSub) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for channel, room := range r.rooms {
		for _, h := range room.handlers {
			close(h.done)
		}
		delete(r.rooms, channel)
	}
	if r.ps == nil {
		return nil
	}
	err := r.ps.Close()
	r.ps = nil
	return err
}

// conn lazily open the shared connection, caller holds mu
func (r *RedisPubSub) conn() *redis.PubSub {
	if r.ps == nil {
		r.ps = r.client.Subscribe(context.Background())
		go r.dispatch(r.ps.ChannelWithSubscriptions(context.Background(), redisDispatchBuffer))
	}
	return r.ps
}

func (r *RedisPubSub) remove(channel string, id uint64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	room, ok := r.rooms[channel]
	if !ok {
		return
	}
	h, ok := room.handlers[id]
	if !ok {
		return
	}
	close(h.done)
	delete(room.handlers, id)
	if len(room.handlers) > 0 {
		return
	}
	delete(r.rooms, channel)
	if r.ps != nil {
		if err := r.ps.Unsubscribe(context.Background(), channel); err != nil {
			logger.Log.Warn("redis unsubscribe", zap.String("channel", channel), zap.Error(err))
		}
	}
}

// dispatch route every frame of the shared connection until it closes
func (r *RedisPubSub) dispatch(frames <-chan interface{}) {
	for frame := range frames {
		switch f := frame.(type) {
		case *redis.Subscription:
			if f.Kind == "subscribe" {
				r.confirm(f.Channel)
			}
		case *redis.Message:
			r.deliver(f.Channel, []byte(f.Payload))
		}
	}
}

func (r *RedisPubSub) confirm(channel string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	room, ok := r.rooms[channel]
	if !ok {
		return
	}
	if room.pending > 0 {
		room.pending--
	}
	if room.pending > 0 {
		return
	}
	select {
	case <-room.ready:
	default:
		close(room.ready)
	}
}

func (r *RedisPubSub) deliver(channel string, payload []byte) {
	r.mu.Lock()
	room, ok := r.rooms[channel]
	var handlers []*redisHandler
	if ok {
		handlers = make([]*redisHandler, 0, len(room.handlers))
		for _, h := range room.handlers {
			handlers = append(handlers, h)
		}
	}
	r.mu.Unlock()

	for _, h := range handlers {
		select {
		case h.queue <- payload:
		case <-h.done:
		default:
			logger.Log.Warn("redis subscriber queue full, drop message", zap.String("channel", channel))
		}
	}
}

// run deliver queued payloads in order, one goroutine per handler
func (h *redisHandler) run(handler func([]byte)) {
	for {
		select {
		case <-h.done:
			return
		case payload := <-h.queue:
			handler(payload)
		}
	}
}
