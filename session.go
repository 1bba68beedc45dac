package sealdrop

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/sealdrop/client-go/internal/api"
	"github.com/sealdrop/client-go/internal/crypto"
	"github.com/sealdrop/client-go/internal/delivery"
	"github.com/sealdrop/client-go/internal/token"
)

// Session is a logged-in user. It owns the user's key material from Login
// until Logout, which wipes every secret it holds. A Session is safe for
// concurrent use.
type Session struct {
	client *Client
	email  string
	rcptID string
	logger *slog.Logger

	mu      sync.RWMutex
	det     *crypto.Identity
	runtime *crypto.RuntimeIdentity
	signer  *token.Signer
	closed  bool

	dirMu     sync.Mutex
	directory map[string]*User

	convMu sync.Mutex
	convs  map[string]*crypto.Conversation

	subs *subscriptionManager

	deliveryMu     sync.Mutex
	strategy       delivery.Strategy
	cancelDelivery context.CancelFunc

	seen *delivery.SeenSet
}

func newSession(c *Client, det *crypto.Identity) *Session {
	return &Session{
		client:    c,
		email:     det.Email,
		logger:    c.logger.With("email", det.Email),
		det:       det,
		signer:    token.NewSigner(det.Email, det.Ed.Private),
		directory: make(map[string]*User),
		convs:     make(map[string]*crypto.Conversation),
		subs:      newSubscriptionManager(),
		seen:      delivery.NewSeenSet(delivery.DefaultSeenLimit),
	}
}

// Email returns the normalized account email.
func (s *Session) Email() string {
	return s.email
}

// RecipientID returns the relay recipient id of the account.
func (s *Session) RecipientID() string {
	return s.rcptID
}

// Token mints a session token for one relay action.
func (s *Session) Token(action string, extra map[string]any) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return "", ErrSessionClosed
	}
	return s.signer.Sign(action, extra, s.client.cfg.tokenTTL)
}

// Fingerprint returns the fingerprint of the account's public keys, the same
// value User.Fingerprint yields for the account's directory entry. It is
// empty after Logout.
func (s *Session) Fingerprint() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return ""
	}
	return crypto.Fingerprint(s.det.Ed.Public, s.runtime.X.Public[:])
}

func (s *Session) isClosed() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.closed
}

// Users returns the relay directory and refreshes the local copy used by
// FindUser. Entries with unusable keys are skipped.
func (s *Session) Users(ctx context.Context) ([]*User, error) {
	if s.isClosed() {
		return nil, ErrSessionClosed
	}

	out, err := s.client.apiClient.ListUsers(ctx, s)
	if err != nil {
		return nil, wrapError(err)
	}

	users := make([]*User, 0, len(out))
	dir := make(map[string]*User, len(out))
	for _, entry := range out {
		u, err := userFromAPI(entry)
		if err != nil {
			s.logger.Warn("skipping directory entry", "error", err)
			continue
		}
		users = append(users, u)
		dir[u.Email] = u
	}

	s.dirMu.Lock()
	s.directory = dir
	s.dirMu.Unlock()
	return users, nil
}

func (s *Session) cachedUser(email string) (*User, bool) {
	s.dirMu.Lock()
	defer s.dirMu.Unlock()
	u, ok := s.directory[email]
	return u, ok
}

// FindUser returns the directory entry for email, refreshing the directory
// when the entry is not known yet.
func (s *Session) FindUser(ctx context.Context, email string) (*User, error) {
	email = crypto.NormalizeEmail(email)
	if u, ok := s.cachedUser(email); ok {
		return u, nil
	}
	if _, err := s.Users(ctx); err != nil {
		return nil, err
	}
	if u, ok := s.cachedUser(email); ok {
		return u, nil
	}
	return nil, fmt.Errorf("%w: %s", ErrRecipientNotFound, email)
}

// conversationLocked returns the conversation with peer. The caller holds
// s.mu for reading.
func (s *Session) conversationLocked(peer *User) (*crypto.Conversation, error) {
	s.convMu.Lock()
	defer s.convMu.Unlock()

	if conv, ok := s.convs[peer.Email]; ok && conv.PeerXPub == peer.EncryptionKey {
		return conv, nil
	}
	conv, err := crypto.DeriveConversation(&s.runtime.X.Private, &peer.EncryptionKey)
	if err != nil {
		return nil, fmt.Errorf("conversation with %s: %w", peer.Email, err)
	}
	if old, ok := s.convs[peer.Email]; ok {
		old.Wipe()
	}
	s.convs[peer.Email] = conv
	return conv, nil
}

// Send encrypts text to the user registered as to and posts it to the relay.
// Sending to one's own address stores a note to self.
func (s *Session) Send(ctx context.Context, to, text string) (*Message, error) {
	peer, err := s.FindUser(ctx, to)
	if err != nil {
		return nil, err
	}

	s.mu.RLock()
	if s.closed {
		s.mu.RUnlock()
		return nil, ErrSessionClosed
	}
	conv, err := s.conversationLocked(peer)
	if err != nil {
		s.mu.RUnlock()
		return nil, err
	}
	sealed, err := crypto.Encrypt(s.runtime, s.email, crypto.Recipient{
		ID:   peer.RecipientID,
		XPub: peer.EncryptionKey,
	}, conv, text, crypto.EncryptOptions{Alg: s.client.cfg.aead})
	s.mu.RUnlock()
	if err != nil {
		return nil, wrapError(err)
	}

	env := sealed.Envelope
	if s.client.cfg.debugCrypto {
		s.logger.Debug("sealed envelope",
			"msg_id", env.MsgID,
			"alg", env.Alg,
			"nonce", env.Nonce,
			"eph_pub", env.EphPub,
		)
	}

	res, err := s.client.apiClient.PostMessage(ctx, s, env)
	if err != nil {
		return nil, wrapError(err)
	}
	if !res.Accepted {
		return nil, fmt.Errorf("relay did not accept message %s", env.MsgID)
	}
	s.logger.Info("message sent", "msg_id", env.MsgID, "recipient", peer.Email)

	return &Message{
		MsgID:     env.MsgID,
		ConvToken: env.ConvToken,
		From:      s.email,
		Peer:      peer.Email,
		Text:      text,
		SentAt:    sealed.Body.TSClient,
		Direction: DirectionOut,
		Verified:  true,
	}, nil
}

// Inbox fetches and decrypts every envelope addressed to the account,
// oldest first by sender timestamp. Envelopes that cannot be opened are
// reported through WithOnDecryptError and left out.
func (s *Session) Inbox(ctx context.Context) ([]*Message, error) {
	envs, err := s.fetchInbox(ctx)
	if err != nil {
		return nil, err
	}
	return s.open(ctx, envs, nil)
}

// Conversation fetches the history with peer in both directions.
func (s *Session) Conversation(ctx context.Context, peer string) ([]*Message, error) {
	u, err := s.FindUser(ctx, peer)
	if err != nil {
		return nil, err
	}

	s.mu.RLock()
	if s.closed {
		s.mu.RUnlock()
		return nil, ErrSessionClosed
	}
	conv, err := s.conversationLocked(u)
	s.mu.RUnlock()
	if err != nil {
		return nil, err
	}

	envs, err := fetchAll(ctx, func(page api.PageRequest) (*api.Page, error) {
		return s.client.apiClient.FetchConversation(ctx, s, conv.Token, page)
	})
	if err != nil {
		return nil, err
	}
	return s.open(ctx, envs, u)
}

func (s *Session) fetchInbox(ctx context.Context) ([]*crypto.Envelope, error) {
	if s.isClosed() {
		return nil, ErrSessionClosed
	}
	return fetchAll(ctx, func(page api.PageRequest) (*api.Page, error) {
		return s.client.apiClient.FetchInbox(ctx, s, s.rcptID, page)
	})
}

// fetchAll follows next_cursor until the last page.
func fetchAll(ctx context.Context, fetch func(api.PageRequest) (*api.Page, error)) ([]*crypto.Envelope, error) {
	var all []*crypto.Envelope
	page := api.PageRequest{Limit: delivery.DefaultPageSize}
	for {
		p, err := fetch(page)
		if err != nil {
			return nil, wrapError(err)
		}
		all = append(all, p.Envelopes...)
		if p.NextCursor == "" || p.NextCursor == page.Cursor {
			return all, nil
		}
		page.Cursor = p.NextCursor
		if err := ctx.Err(); err != nil {
			return nil, err
		}
	}
}

// open decrypts envs. peer is the conversation peer when envs come from a
// conversation history, nil otherwise.
func (s *Session) open(ctx context.Context, envs []*crypto.Envelope, peer *User) ([]*Message, error) {
	s.mu.RLock()
	if s.closed {
		s.mu.RUnlock()
		return nil, ErrSessionClosed
	}
	var conv *crypto.Conversation
	peerEmail := ""
	if peer != nil {
		var err error
		if conv, err = s.conversationLocked(peer); err != nil {
			s.mu.RUnlock()
			return nil, err
		}
		peerEmail = peer.Email
	}
	opened, failures, err := crypto.DecryptBatch(ctx, envs, s.runtime, s.email, conv, s.client.cfg.decryptConcurrency)
	s.mu.RUnlock()
	if err != nil {
		return nil, err
	}

	for _, f := range failures {
		s.reportFailure(f)
	}

	msgs := make([]*Message, len(opened))
	for i, o := range opened {
		msgs[i] = newMessage(o, s.email, peerEmail)
	}
	s.verifySenders(ctx, opened, msgs)

	for i, m := range msgs {
		if m.Verified {
			s.client.metrics.CountDecrypt(opened[i].Hypothesis.String())
		} else {
			s.client.metrics.CountDecrypt("unverified")
			s.logger.Warn("message failed verification", "msg_id", m.MsgID, "problem", m.Problem)
		}
		if s.client.cfg.debugCrypto {
			s.logger.Debug("opened envelope",
				"msg_id", m.MsgID,
				"hypothesis", opened[i].Hypothesis.String(),
				"eph_pub", opened[i].Envelope.EphPub,
				"nonce", opened[i].Envelope.Nonce,
			)
		}
	}
	return msgs, nil
}

func (s *Session) reportFailure(f crypto.BatchFailure) {
	// A relay can send null entries; they arrive here with no envelope.
	var envID, msgID string
	if f.Envelope != nil {
		envID, msgID = f.Envelope.ID, f.Envelope.MsgID
	}

	err := f.Err
	if errors.Is(err, crypto.ErrDecryptionFailed) {
		err = &DecryptionError{MsgID: msgID, Err: err}
	}
	envErr := &EnvelopeError{EnvelopeID: envID, MsgID: msgID, Err: err}

	s.client.metrics.CountDecrypt("failed")
	s.logger.Warn("skipping envelope", "envelope_id", envID, "error", err)
	if fn := s.client.cfg.onDecryptError; fn != nil {
		fn(envErr)
	}
}

// verifySenders checks that incoming messages carry the encryption key the
// directory publishes for the claimed sender. The directory is refreshed at
// most once per batch.
func (s *Session) verifySenders(ctx context.Context, opened []*crypto.Opened, msgs []*Message) {
	refreshed := false
	for i, o := range opened {
		if o.Hypothesis != crypto.HypothesisIncoming || o.Direction != crypto.DirectionIn || o.Body == nil {
			continue
		}
		m := msgs[i]
		u, ok := s.cachedUser(m.From)
		if !ok && !refreshed {
			refreshed = true
			if _, err := s.Users(ctx); err != nil {
				s.logger.Warn("directory refresh failed", "error", err)
			}
			u, ok = s.cachedUser(m.From)
		}
		if !ok {
			m.flag("sender not in directory")
			continue
		}
		claimed, err := crypto.DecodeBase64(o.Body.SenderPubX)
		if err != nil || !bytes.Equal(claimed, u.EncryptionKey[:]) {
			m.flag("sender key does not match directory")
		}
	}
}

// Subscribe calls fn for each new message delivered to the account. The
// first subscription starts the configured delivery strategy. Messages
// already in the inbox are delivered once when the strategy starts.
func (s *Session) Subscribe(fn func(*Message)) (unsubscribe func(), err error) {
	unsubscribe = s.subs.subscribe(fn)
	if err := s.startDelivery(); err != nil {
		unsubscribe()
		return nil, err
	}
	return unsubscribe, nil
}

func (s *Session) startDelivery() error {
	s.deliveryMu.Lock()
	defer s.deliveryMu.Unlock()

	if s.isClosed() {
		return ErrSessionClosed
	}
	if s.strategy != nil {
		return nil
	}

	cfg := s.client.cfg
	strategy := delivery.New(string(cfg.deliveryStrategy), delivery.Config{
		Relay:           s.client.apiClient,
		Auth:            s,
		RecipientID:     s.rcptID,
		PollingInterval: cfg.pollingInterval,
		Logger:          s.logger,
		Metrics:         s.client.metrics,
	})
	strategy.OnReconnect(s.backfill)

	ctx, cancel := context.WithCancel(context.Background())
	if err := strategy.Start(ctx, s.handleEnvelopes); err != nil {
		cancel()
		return fmt.Errorf("start delivery strategy: %w", err)
	}
	s.logger.Debug("delivery started", "strategy", strategy.Name())

	s.strategy = strategy
	s.cancelDelivery = cancel
	return nil
}

func (s *Session) stopDelivery() {
	s.deliveryMu.Lock()
	defer s.deliveryMu.Unlock()

	if s.strategy == nil {
		return
	}
	s.cancelDelivery()
	s.strategy.Stop()
	s.strategy = nil
	s.cancelDelivery = nil
}

// DeliveryStrategy returns the running strategy name, or "" when delivery
// has not started.
func (s *Session) DeliveryStrategy() string {
	s.deliveryMu.Lock()
	defer s.deliveryMu.Unlock()
	if s.strategy == nil {
		return ""
	}
	return s.strategy.Name()
}

// handleEnvelopes decrypts envelopes from the delivery strategy and notifies
// subscribers of the ones not seen before. Envelopes of a batch that could
// not be opened are forgotten so a later poll or backfill delivers them.
func (s *Session) handleEnvelopes(ctx context.Context, envs []*crypto.Envelope) {
	fresh := s.seen.Claim(envs)
	if len(fresh) == 0 {
		return
	}

	msgs, err := s.open(ctx, fresh, nil)
	if err != nil {
		s.seen.Forget(fresh)
		if !errors.Is(err, ErrSessionClosed) && ctx.Err() == nil {
			s.logger.Warn("failed to open delivered envelopes", "error", err)
		}
		return
	}
	for _, m := range msgs {
		s.subs.notify(m)
	}
}

// backfill fetches the inbox after a reconnect so messages stored while the
// stream was down are not missed.
func (s *Session) backfill(ctx context.Context) {
	envs, err := s.fetchInbox(ctx)
	if err != nil {
		if ctx.Err() == nil {
			s.logger.Debug("backfill failed", "error", err)
		}
		return
	}
	s.handleEnvelopes(ctx, envs)
}

// Logout stops delivery, wipes every secret the session holds and detaches
// it from its client. Later calls on the session return ErrSessionClosed.
// Logout is idempotent.
func (s *Session) Logout() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.mu.Unlock()

	s.stopDelivery()
	s.subs.clear()

	s.mu.Lock()
	s.det.Wipe()
	s.runtime.Wipe()
	s.det, s.runtime, s.signer = nil, nil, nil
	s.mu.Unlock()

	s.convMu.Lock()
	for _, conv := range s.convs {
		conv.Wipe()
	}
	s.convs = make(map[string]*crypto.Conversation)
	s.convMu.Unlock()

	s.client.detach(s)
	s.logger.Info("logged out")
	return nil
}
