package events

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/alphadose/haxmap"
	"github.com/casualjim/polyscript/pkg/uuidx"
)

const defaultSlowSubscriberTimeout = 100 * time.Millisecond

type Broker interface {
	Topic(context.Context, string) Topic
}

type Topic interface {
	Publish(context.Context, Event) error
	Subscribe(context.Context, Hook) (Subscription, error)
}

type Subscription interface {
	ID() string
	Unsubscribe()
}

// LocalBroker delivers events in process. Each subscription has a buffered channel
// drained by its own goroutine; a subscriber that stays full for longer than the
// slow subscriber timeout is dropped.
type LocalBroker struct {
	topics                *haxmap.Map[string, *topic]
	slowSubscriberTimeout time.Duration
}

func Local() *LocalBroker {
	return &LocalBroker{
		topics:                haxmap.New[string, *topic](),
		slowSubscriberTimeout: defaultSlowSubscriberTimeout,
	}
}

// WithSlowSubscriberTimeout configures the timeout for detecting slow subscribers
func (b *LocalBroker) WithSlowSubscriberTimeout(timeout time.Duration) *LocalBroker {
	b.slowSubscriberTimeout = timeout
	return b
}

func (b *LocalBroker) Topic(_ context.Context, id string) Topic {
	t, _ := b.topics.GetOrCompute(id, func() *topic {
		return &topic{
			id:                    id,
			subscriptions:         haxmap.New[string, *subscription](),
			slowSubscriberTimeout: b.slowSubscriberTimeout,
		}
	})
	return t
}

type topic struct {
	id                    string
	subscriptions         *haxmap.Map[string, *subscription]
	slowSubscriberTimeout time.Duration
}

func (t *topic) Publish(ctx context.Context, event Event) error {
	if event == nil {
		return fmt.Errorf("event is required")
	}
	var dropped []*subscription
	t.subscriptions.ForEach(func(_ string, sub *subscription) bool {
		if sub == nil {
			return true
		}
		switch sub.send(ctx, event, t.slowSubscriberTimeout) {
		case sendAborted:
			return false
		case sendDropped:
			dropped = append(dropped, sub)
		}
		return true
	})
	for _, sub := range dropped {
		sub.Unsubscribe()
	}
	return ctx.Err()
}

func (t *topic) Subscribe(ctx context.Context, hook Hook) (Subscription, error) {
	if hook == nil {
		return nil, fmt.Errorf("hook is required")
	}
	id := uuidx.NewString()
	sub := &subscription{
		id:      id,
		ctx:     ctx,
		channel: make(chan Event, 50),
		onClose: func() { t.subscriptions.Del(id) },
		hook:    hook,
	}
	t.subscriptions.Set(id, sub)
	go sub.forwardToHook()
	return sub, nil
}

type sendResult int

const (
	sendOK sendResult = iota
	sendDropped
	sendAborted
)

type subscription struct {
	id      string
	ctx     context.Context
	channel chan Event
	onClose func()
	hook    Hook

	mu     sync.RWMutex
	closed bool
	once   sync.Once
}

func (s *subscription) ID() string {
	return s.id
}

func (s *subscription) send(ctx context.Context, event Event, timeout time.Duration) sendResult {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return sendOK
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return sendAborted
	case <-s.ctx.Done():
		return sendDropped
	case s.channel <- event:
		return sendOK
	case <-timer.C:
		return sendDropped
	}
}

func (s *subscription) Unsubscribe() {
	s.once.Do(func() {
		if s.onClose != nil {
			s.onClose()
		}
		s.mu.Lock()
		s.closed = true
		close(s.channel)
		s.mu.Unlock()
	})
}

func (s *subscription) forwardToHook() {
	for {
		select {
		case event, ok := <-s.channel:
			if !ok {
				return
			}
			Dispatch(s.ctx, s.hook, event)
		case <-s.ctx.Done():
			s.Unsubscribe()
			return
		}
	}
}
