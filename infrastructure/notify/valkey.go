package notify

import (
	"context"
	"encoding/json"
	"sync"
	"sync/atomic"
	"time"

	"github.com/AzielCF/az-compare/domains/reconcile"
	"github.com/sirupsen/logrus"
)

// Publisher is the part of the Valkey client the sink needs.
type Publisher interface {
	Channel(name string) string
	Publish(ctx context.Context, channel, message string) error
}

// ValkeySink publishes events from a background goroutine. Publish never
// blocks: events are dropped while the buffer is full.
type ValkeySink struct {
	pub      Publisher
	senderID string
	channel  string
	queue    chan reconcile.Event
	dropped  int64
	once     sync.Once
	done     chan struct{}
}

func NewValkeySink(pub Publisher, senderID string, buffer int) *ValkeySink {
	if buffer <= 0 {
		buffer = 256
	}
	return &ValkeySink{
		pub:      pub,
		senderID: senderID,
		channel:  pub.Channel(EventsChannel),
		queue:    make(chan reconcile.Event, buffer),
		done:     make(chan struct{}),
	}
}

func (s *ValkeySink) Publish(e reconcile.Event) {
	select {
	case s.queue <- e:
	default:
		if n := atomic.AddInt64(&s.dropped, 1); n%100 == 1 {
			logrus.Warnf("[NOTIFY] Valkey queue full, %d events dropped so far", n)
		}
	}
}

// Start drains the queue until ctx is done.
func (s *ValkeySink) Start(ctx context.Context) {
	s.once.Do(func() {
		go func() {
			defer close(s.done)
			for {
				select {
				case <-ctx.Done():
					return
				case e := <-s.queue:
					s.send(ctx, e)
				}
			}
		}()
	})
}

// Done is closed once the publishing goroutine exits.
func (s *ValkeySink) Done() <-chan struct{} {
	return s.done
}

func (s *ValkeySink) Dropped() int64 {
	return atomic.LoadInt64(&s.dropped)
}

func (s *ValkeySink) send(ctx context.Context, e reconcile.Event) {
	data, err := json.Marshal(Envelope{SenderID: s.senderID, Event: e})
	if err != nil {
		logrus.Errorf("[NOTIFY] Marshal error: %v", err)
		return
	}
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	if err := s.pub.Publish(ctx, s.channel, string(data)); err != nil {
		logrus.Errorf("[NOTIFY] Failed to publish to Valkey: %v", err)
	}
}
