package sealdrop

import (
	"context"
	"fmt"
)

// Watch returns a channel that receives messages as they arrive.
// The channel is not closed when the context is cancelled; use a select
// on ctx.Done() to detect cancellation.
//
// Example:
//
//	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
//	defer cancel()
//
//	ch, err := session.Watch(ctx)
//	if err != nil {
//	    return err
//	}
//	for {
//	    select {
//	    case <-ctx.Done():
//	        return nil
//	    case msg := <-ch:
//	        fmt.Printf("%s: %s\n", msg.From, msg.Text)
//	    }
//	}
func (s *Session) Watch(ctx context.Context) (<-chan *Message, error) {
	ch := make(chan *Message, 16)

	unsubscribe, err := s.Subscribe(func(m *Message) {
		select {
		case ch <- m:
		default:
			// Buffer full, drop
		}
	})
	if err != nil {
		return nil, err
	}

	// ch stays open so an in-flight callback never sends on a closed channel.
	go func() {
		<-ctx.Done()
		unsubscribe()
	}()

	return ch, nil
}

// WatchFunc calls fn for each message as it arrives until the context is
// cancelled.
func (s *Session) WatchFunc(ctx context.Context, fn func(*Message)) error {
	msgs, err := s.Watch(ctx)
	if err != nil {
		return err
	}
	for {
		select {
		case <-ctx.Done():
			return nil
		case m := <-msgs:
			if m != nil {
				fn(m)
			}
		}
	}
}

func newWaitConfig(opts []WaitOption) *waitConfig {
	cfg := &waitConfig{
		timeout: defaultWaitTimeout,
	}
	for _, opt := range opts {
		opt(cfg)
	}
	return cfg
}

// WaitForMessage waits for a message matching the given criteria. A matching
// message already in the inbox is returned immediately.
func (s *Session) WaitForMessage(ctx context.Context, opts ...WaitOption) (*Message, error) {
	cfg := newWaitConfig(opts)

	ctx, cancel := context.WithTimeout(ctx, cfg.timeout)
	defer cancel()

	// 1. Start watching first so nothing slips in between the inbox read
	// and the subscription.
	msgs, err := s.Watch(ctx)
	if err != nil {
		return nil, err
	}

	// 2. Check existing messages
	existing, err := s.Inbox(ctx)
	if err != nil {
		return nil, err
	}
	for _, m := range existing {
		if cfg.Matches(m) {
			return m, nil
		}
	}

	// 3. Watch for new messages
	for {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case m := <-msgs:
			if m != nil && cfg.Matches(m) {
				return m, nil
			}
		}
	}
}

// WaitForMessageCount waits until at least count matching messages are found.
func (s *Session) WaitForMessageCount(ctx context.Context, count int, opts ...WaitOption) ([]*Message, error) {
	if count < 0 {
		return nil, fmt.Errorf("count must be non-negative, got %d", count)
	}
	if count == 0 {
		return []*Message{}, nil
	}

	cfg := newWaitConfig(opts)

	ctx, cancel := context.WithTimeout(ctx, cfg.timeout)
	defer cancel()

	seen := make(map[string]struct{})
	var results []*Message

	addIfNew := func(m *Message) {
		if _, ok := seen[m.key()]; ok {
			return
		}
		if cfg.Matches(m) {
			seen[m.key()] = struct{}{}
			results = append(results, m)
		}
	}

	msgs, err := s.Watch(ctx)
	if err != nil {
		return nil, err
	}

	existing, err := s.Inbox(ctx)
	if err != nil {
		return nil, err
	}
	for _, m := range existing {
		addIfNew(m)
		if len(results) >= count {
			return results[:count], nil
		}
	}

	for {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case m := <-msgs:
			if m != nil {
				addIfNew(m)
				if len(results) >= count {
					return results[:count], nil
				}
			}
		}
	}
}
