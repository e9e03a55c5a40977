// Package broadcast fans out applied wavelet deltas across server
// processes sharing a wavelet, via Redis pub/sub.
package broadcast

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Delta is the payload published on a wavelet's channel whenever this
// instance commits operations to one of its blips.
type Delta struct {
	WaveID    string           `json:"waveId"`
	WaveletID string           `json:"waveletId"`
	BlipID    string           `json:"blipId"`
	Version   int              `json:"version"`
	Ops       []map[string]any `json:"ops"`
}

// Broadcaster wraps a pooled Redis client used to publish and subscribe to
// per-wavelet delta channels.
type Broadcaster struct {
	client *redis.Client
}

// New connects to addr and verifies the connection with a ping.
func New(addr, password string) (*Broadcaster, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         addr,
		Password:     password,
		DB:           0,
		MaxRetries:   3,
		PoolSize:     10,
		MinIdleConns: 2,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
		DialTimeout:  5 * time.Second,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("broadcast: connect to redis: %w", err)
	}

	return &Broadcaster{client: client}, nil
}

// Close releases the underlying connection pool.
func (b *Broadcaster) Close() error {
	return b.client.Close()
}

func channelFor(waveletID string) string {
	return "wavelet:" + waveletID + ":deltas"
}

// Publish sends a delta to every sibling instance subscribed to its
// wavelet's channel.
func (b *Broadcaster) Publish(ctx context.Context, d Delta) error {
	payload, err := json.Marshal(d)
	if err != nil {
		return fmt.Errorf("broadcast: marshal delta: %w", err)
	}
	if err := b.client.Publish(ctx, channelFor(d.WaveletID), payload).Err(); err != nil {
		return fmt.Errorf("broadcast: publish: %w", err)
	}
	return nil
}

// Subscribe returns a channel of deltas published for waveletID by any
// instance (including this one). Callers should range over it from a
// dedicated goroutine and stop when ctx is cancelled.
func (b *Broadcaster) Subscribe(ctx context.Context, waveletID string) (<-chan Delta, error) {
	sub := b.client.Subscribe(ctx, channelFor(waveletID))
	if _, err := sub.Receive(ctx); err != nil {
		sub.Close()
		return nil, fmt.Errorf("broadcast: subscribe: %w", err)
	}

	out := make(chan Delta)
	go func() {
		defer close(out)
		defer sub.Close()
		ch := sub.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-ch:
				if !ok {
					return
				}
				var d Delta
				if err := json.Unmarshal([]byte(msg.Payload), &d); err != nil {
					continue
				}
				select {
				case out <- d:
				case <-ctx.Done():
					return
				}
			}
		}
	}()
	return out, nil
}
