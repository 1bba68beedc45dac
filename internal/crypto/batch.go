package crypto

import (
	"context"
	"sort"

	"golang.org/x/sync/errgroup"
)

// DefaultBatchConcurrency bounds DecryptBatch when limit is not positive.
const DefaultBatchConcurrency = 8

// BatchFailure records an envelope DecryptBatch could not open.
type BatchFailure struct {
	Envelope *Envelope
	Err      error
}

// DecryptBatch opens envs concurrently. A failing envelope never aborts the
// batch; it is reported in the returned failures instead. Opened messages are
// sorted by ts_client, ties broken by msg_id. The only error returned is
// ctx.Err() when ctx ends before the batch completes.
func DecryptBatch(ctx context.Context, envs []*Envelope, me *RuntimeIdentity, selfEmail string, conv *Conversation, limit int) ([]*Opened, []BatchFailure, error) {
	if limit <= 0 {
		limit = DefaultBatchConcurrency
	}

	opened := make([]*Opened, len(envs))
	errs := make([]error, len(envs))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(limit)
	for i, env := range envs {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			opened[i], errs[i] = Decrypt(env, me, selfEmail, conv)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, nil, err
	}

	out := make([]*Opened, 0, len(envs))
	var failures []BatchFailure
	for i := range envs {
		if errs[i] != nil {
			failures = append(failures, BatchFailure{Envelope: envs[i], Err: errs[i]})
			continue
		}
		out = append(out, opened[i])
	}
	SortOpened(out)
	return out, failures, nil
}

// SortOpened orders messages by client timestamp, then msg_id.
func SortOpened(msgs []*Opened) {
	sort.SliceStable(msgs, func(i, j int) bool {
		a, b := msgs[i].Envelope, msgs[j].Envelope
		if !a.TSClient.Equal(b.TSClient) {
			return a.TSClient.Before(b.TSClient)
		}
		return a.MsgID < b.MsgID
	})
}
