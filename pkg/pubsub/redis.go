package pubsub

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"taskstream/pkg/interfaces"
	"taskstream/pkg/logger"
	"taskstream/pkg/metrics"

	"github.com/go-redis/redis/v8"
)

// RedisPubSub is the Redis-backed fan-out bridge. One background
// listener receives on all subscribed channels and dispatches to the
// registered handlers, so same-process and cross-process publishers
// share a single delivery path.
type RedisPubSub struct {
	client *redis.Client
	m      *metrics.Metrics

	mu       sync.RWMutex
	handlers map[string]interfaces.MessageHandler

	sub    *redis.PubSub
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewRedisPubSub creates a bridge on an existing Redis client.
func NewRedisPubSub(client *redis.Client, m *metrics.Metrics) *RedisPubSub {
	return &RedisPubSub{
		client:   client,
		m:        m,
		handlers: make(map[string]interfaces.MessageHandler),
	}
}

// Publish publishes a payload to a channel.
func (p *RedisPubSub) Publish(ctx context.Context, channel string, payload []byte) error {
	if err := p.client.Publish(ctx, channel, payload).Err(); err != nil {
		return fmt.Errorf("publish to %s: %w", channel, err)
	}
	if p.m != nil {
		p.m.PubSubPublished.WithLabelValues(ChannelType(channel)).Inc()
	}
	return nil
}

// Subscribe registers a handler for a channel. When the listener is
// already running the subscription is added live.
func (p *RedisPubSub) Subscribe(channel string, handler interfaces.MessageHandler) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if _, exists := p.handlers[channel]; exists {
		return fmt.Errorf("channel %s already has a handler", channel)
	}
	p.handlers[channel] = handler

	if p.sub != nil {
		if err := p.sub.Subscribe(context.Background(), channel); err != nil {
			delete(p.handlers, channel)
			return fmt.Errorf("subscribe %s: %w", channel, err)
		}
		// Subscribe only queues the command, the server may not have
		// processed it yet. Wait until it shows up server-side so a
		// publish right after this call cannot be lost.
		if err := p.awaitSubscription(channel); err != nil {
			delete(p.handlers, channel)
			return err
		}
	}
	return nil
}

// awaitSubscription polls the server until the channel has at least
// one subscriber.
func (p *RedisPubSub) awaitSubscription(channel string) error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	for {
		counts, err := p.client.PubSubNumSub(ctx, channel).Result()
		if err != nil {
			return fmt.Errorf("confirm subscription %s: %w", channel, err)
		}
		if counts[channel] > 0 {
			return nil
		}
		select {
		case <-ctx.Done():
			return fmt.Errorf("confirm subscription %s: %w", channel, ctx.Err())
		case <-time.After(10 * time.Millisecond):
		}
	}
}

// StartListener starts the background receive loop for every channel
// registered so far. Handler errors are logged, never fatal to the
// loop.
func (p *RedisPubSub) StartListener(ctx context.Context) error {
	p.mu.Lock()
	if p.sub != nil {
		p.mu.Unlock()
		return fmt.Errorf("listener already running")
	}

	channels := make([]string, 0, len(p.handlers))
	for ch := range p.handlers {
		channels = append(channels, ch)
	}
	if len(channels) == 0 {
		p.mu.Unlock()
		return fmt.Errorf("no channels subscribed")
	}

	listenCtx, cancel := context.WithCancel(ctx)
	p.cancel = cancel
	p.sub = p.client.Subscribe(listenCtx, channels...)
	sub := p.sub
	p.mu.Unlock()

	// Wait for the subscription to be confirmed before returning
	if _, err := sub.Receive(listenCtx); err != nil {
		p.StopListener()
		return fmt.Errorf("confirm subscription: %w", err)
	}

	p.wg.Add(1)
	go p.listen(listenCtx, sub)

	logger.Infof("pubsub listener started, channels=%v", channels)
	return nil
}

func (p *RedisPubSub) listen(ctx context.Context, sub *redis.PubSub) {
	defer p.wg.Done()

	ch := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-ch:
			if !ok {
				return
			}
			p.dispatch(ctx, msg.Channel, []byte(msg.Payload))
		}
	}
}

func (p *RedisPubSub) dispatch(ctx context.Context, channel string, payload []byte) {
	p.mu.RLock()
	handler := p.handlers[channel]
	p.mu.RUnlock()

	if handler == nil {
		logger.Debugf("no handler for channel %s, dropping message", channel)
		return
	}
	if p.m != nil {
		p.m.PubSubReceived.WithLabelValues(ChannelType(channel)).Inc()
	}

	defer func() {
		if r := recover(); r != nil {
			logger.Errorf("pubsub handler panic on channel %s: %v", channel, r)
		}
	}()
	if err := handler(ctx, channel, payload); err != nil {
		logger.Errorf("pubsub handler error on channel %s: %v", channel, err)
	}
}

// StopListener cancels the receive loop and waits for it to exit.
func (p *RedisPubSub) StopListener() {
	p.mu.Lock()
	sub := p.sub
	cancel := p.cancel
	p.sub = nil
	p.cancel = nil
	p.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if sub != nil {
		_ = sub.Close()
	}
	p.wg.Wait()
}

// Connected reports whether Redis currently answers a ping.
func (p *RedisPubSub) Connected(ctx context.Context) bool {
	pingCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	return p.client.Ping(pingCtx).Err() == nil
}

// Close stops the listener. The Redis client is owned by the caller
// and left open.
func (p *RedisPubSub) Close() error {
	p.StopListener()
	return nil
}

// ChannelType returns the metric label for a channel name, the part
// before the first colon.
func ChannelType(channel string) string {
	if idx := strings.Index(channel, ":"); idx >= 0 {
		return channel[:idx]
	}
	return channel
}
