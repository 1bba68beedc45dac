package delivery

import (
	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/sealdrop/client-go/internal/crypto"
)

// DefaultSeenLimit bounds how many envelope keys a SeenSet remembers.
const DefaultSeenLimit = 10000

// SeenSet remembers recently delivered envelopes. Past its limit the least
// recently claimed keys are evicted. It is safe for concurrent use.
type SeenSet struct {
	cache *lru.Cache[string, struct{}]
}

// NewSeenSet returns a set holding at most limit keys, or DefaultSeenLimit
// when limit is not positive.
func NewSeenSet(limit int) *SeenSet {
	if limit <= 0 {
		limit = DefaultSeenLimit
	}
	// lru.New only fails for a non-positive size.
	cache, _ := lru.New[string, struct{}](limit)
	return &SeenSet{cache: cache}
}

// Claim marks envs seen and returns the ones that were not seen before. Nil
// entries are dropped.
func (s *SeenSet) Claim(envs []*crypto.Envelope) []*crypto.Envelope {
	var fresh []*crypto.Envelope
	for _, env := range envs {
		if env == nil {
			continue
		}
		if found, _ := s.cache.ContainsOrAdd(EnvelopeKey(env), struct{}{}); found {
			continue
		}
		fresh = append(fresh, env)
	}
	return fresh
}

// Forget unmarks envs so a later Claim returns them again.
func (s *SeenSet) Forget(envs []*crypto.Envelope) {
	for _, env := range envs {
		if env != nil {
			s.cache.Remove(EnvelopeKey(env))
		}
	}
}

// Len returns the number of remembered keys.
func (s *SeenSet) Len() int {
	return s.cache.Len()
}

// EnvelopeKey identifies env for deduplication: the relay id when present,
// otherwise conv_token and msg_id.
func EnvelopeKey(env *crypto.Envelope) string {
	if env.ID != "" {
		return env.ID
	}
	return env.ConvToken + "/" + env.MsgID
}
