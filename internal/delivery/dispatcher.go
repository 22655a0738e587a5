package delivery

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/sethvargo/go-retry"
)

// Message carries everything the transport needs to reach the contact. The
// clear code exists only here and in the transport; the engine stores hashes.
type Message struct {
	Email         string
	UserInputCode string
	MagicLink     string
	ExpiresAt     time.Time
}

// Sender is the out-of-band transport collaborator (email, SMS, console).
type Sender interface {
	SendCode(ctx context.Context, msg Message) error
}

// Config bounds the retry budget for one dispatch.
type Config struct {
	BaseBackoff time.Duration
	MaxRetries  uint64
	MaxElapsed  time.Duration
}

// Dispatcher sends messages asynchronously with bounded backoff.
type Dispatcher struct {
	sender Sender
	cfg    Config
	wg     sync.WaitGroup
}

func NewDispatcher(sender Sender, cfg Config) *Dispatcher {
	if cfg.BaseBackoff <= 0 {
		cfg.BaseBackoff = 500 * time.Millisecond
	}
	if cfg.MaxRetries == 0 {
		cfg.MaxRetries = 4
	}
	if cfg.MaxElapsed <= 0 {
		cfg.MaxElapsed = 30 * time.Second
	}
	return &Dispatcher{
		sender: sender,
		cfg:    cfg,
	}
}

// Dispatch queues one send and returns immediately. The send is abandoned
// once the message's own expiry passes.
func (d *Dispatcher) Dispatch(msg Message) {
	if d == nil || d.sender == nil {
		return
	}

	d.wg.Add(1)
	go func() {
		defer d.wg.Done()

		ctx, cancel := context.WithTimeout(context.Background(), d.cfg.MaxElapsed)
		defer cancel()

		backoff := retry.WithMaxRetries(d.cfg.MaxRetries, retry.NewFibonacci(d.cfg.BaseBackoff))
		err := retry.Do(ctx, backoff, func(ctx context.Context) error {
			if !msg.ExpiresAt.IsZero() && time.Now().After(msg.ExpiresAt) {
				return nil
			}
			if err := d.sender.SendCode(ctx, msg); err != nil {
				return retry.RetryableError(err)
			}
			return nil
		})
		if err != nil {
			log.Print("authgate: code delivery failed after retries")
		}
	}()
}

// Close waits for in-flight dispatches to finish.
func (d *Dispatcher) Close() {
	if d == nil {
		return
	}
	d.wg.Wait()
}
