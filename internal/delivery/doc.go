// Package delivery provides strategies for receiving envelopes addressed to
// the logged-in user.
//
// # Delivery Strategies
//
//   - [WebSocketStrategy]: holds the relay push stream open. The relay sends
//     the current inbox on connect, then each new envelope as it is stored.
//
//   - [PollingStrategy]: pages the inbox with adaptive backoff. Use when the
//     push stream is blocked by a proxy or not offered by the relay.
//
//   - [AutoStrategy]: tries the push stream first and falls back to polling
//     if it does not connect within [Config].ConnectTimeout.
//
// # Usage
//
//	cfg := delivery.Config{Relay: relay, Auth: session, RecipientID: rcptID}
//	strategy := delivery.New("auto", cfg)
//	strategy.Start(ctx, func(ctx context.Context, envs []*crypto.Envelope) {
//	    // decrypt and dispatch
//	})
//	defer strategy.Stop()
//
// Strategies deliver at least once. The same envelope can arrive again after a
// reconnect, so handlers deduplicate by envelope id.
//
// # Backoff
//
//   - Polling grows from 2s to 30s by a factor of 1.5 while the inbox is idle,
//     with up to 30% jitter
//   - The push stream reconnects after base * 2^attempt, capped at six
//     doublings
package delivery
