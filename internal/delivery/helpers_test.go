package delivery

import (
	"context"
	"fmt"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/sealdrop/client-go/internal/api"
	"github.com/sealdrop/client-go/internal/crypto"
)

type fakeAuth struct{}

func (fakeAuth) Email() string { return "alice@example.com" }

func (fakeAuth) Token(action string, extra map[string]any) (string, error) {
	return "tok-" + action, nil
}

// fakeRelay serves an in-memory inbox in pages of pageSize.
type fakeRelay struct {
	mu       sync.Mutex
	envs     []*crypto.Envelope
	pushURL  string
	fetches  int
	cursors  []string
	fetchErr error
}

func (r *fakeRelay) add(n int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for range n {
		id := len(r.envs) + 1
		r.envs = append(r.envs, &crypto.Envelope{
			V:         crypto.ProtocolVersion,
			ID:        strconv.Itoa(id),
			MsgID:     fmt.Sprintf("%032x", id),
			ConvToken: "conv",
		})
	}
}

func (r *fakeRelay) PushURL(authz api.Authorizer, rcptID string) (string, error) {
	if r.pushURL == "" {
		return "", fmt.Errorf("no push stream")
	}
	return r.pushURL, nil
}

func (r *fakeRelay) FetchInbox(ctx context.Context, authz api.Authorizer, rcptID string, page api.PageRequest) (*api.Page, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.fetches++
	r.cursors = append(r.cursors, page.Cursor)
	if r.fetchErr != nil {
		return nil, r.fetchErr
	}

	start := 0
	if page.Cursor != "" {
		start, _ = strconv.Atoi(page.Cursor)
	}
	end := min(start+page.Limit, len(r.envs))
	out := &api.Page{Envelopes: append([]*crypto.Envelope(nil), r.envs[start:end]...)}
	if end < len(r.envs) {
		out.NextCursor = strconv.Itoa(end)
	}
	return out, nil
}

// collector records delivered envelope ids.
type collector struct {
	mu  sync.Mutex
	ids []string
}

func (c *collector) handle(ctx context.Context, envs []*crypto.Envelope) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, env := range envs {
		c.ids = append(c.ids, env.ID)
	}
}

func (c *collector) snapshot() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.ids...)
}

func waitFor(t *testing.T, timeout time.Duration, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not met before timeout")
}
