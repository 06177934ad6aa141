package etsy

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"
	"golang.org/x/oauth2"
	"golang.org/x/sync/singleflight"
)

// ErrPersistFailed marks a token operation that succeeded remotely but could not be saved.
// The returned TokenPair is still valid for the current process.
var ErrPersistFailed = errors.New("failed to persist credentials")

// expirySkew refreshes slightly before the provider's deadline.
const expirySkew = 30 * time.Second

// TokenStore persists the credential pair. internal/store provides the implementations.
type TokenStore interface {
	Save(ctx context.Context, pair TokenPair) error
	Load(ctx context.Context) (TokenPair, error)
}

// TokenSource serves access tokens from the store and refreshes them when they are known
// to be expired. Concurrent refreshes collapse into a single token endpoint call.
type TokenSource struct {
	auth  *EtsyAuth
	store TokenStore
	group singleflight.Group

	mu     sync.Mutex
	cached *TokenPair
}

// NewTokenSource binds auth and store.
func NewTokenSource(auth *EtsyAuth, store TokenStore) *TokenSource {
	return &TokenSource{auth: auth, store: store}
}

// OAuth2 adapts the source to oauth2.TokenSource for the given context.
func (s *TokenSource) OAuth2(ctx context.Context) oauth2.TokenSource {
	return oauth2TokenSource{ctx: ctx, src: s}
}

type oauth2TokenSource struct {
	ctx context.Context
	src *TokenSource
}

func (t oauth2TokenSource) Token() (*oauth2.Token, error) {
	pair, err := t.src.Current(t.ctx)
	if err != nil {
		return nil, err
	}
	return pair.OAuth2Token(), nil
}

// Current returns a usable pair, loading it on first use and refreshing it when expired.
func (s *TokenSource) Current(ctx context.Context) (TokenPair, error) {
	s.mu.Lock()
	cached := s.cached
	s.mu.Unlock()

	if cached == nil {
		loaded, err := s.store.Load(ctx)
		if err != nil {
			return TokenPair{}, err
		}
		s.remember(loaded)
		cached = &loaded
	}
	if cached.ExpiresAt.IsZero() || s.auth.now().Add(expirySkew).Before(cached.ExpiresAt) {
		return *cached, nil
	}
	pair, err := s.Refresh(ctx)
	if err != nil && !errors.Is(err, ErrPersistFailed) {
		return TokenPair{}, err
	}
	return pair, nil
}

// Refresh loads the stored pair, performs a refresh_token grant, merges the result and saves
// it. When only the save fails, the refreshed pair is returned with an error wrapping
// ErrPersistFailed.
func (s *TokenSource) Refresh(ctx context.Context) (TokenPair, error) {
	v, err, shared := s.group.Do("refresh", func() (interface{}, error) {
		prev, errLoad := s.store.Load(ctx)
		if errLoad != nil {
			return TokenPair{}, errLoad
		}
		fresh, errRefresh := s.auth.RefreshTokens(ctx, prev.RefreshToken)
		if errRefresh != nil {
			return TokenPair{}, errRefresh
		}
		merged := fresh.Merge(prev)
		s.remember(merged)
		if errSave := s.store.Save(ctx, merged); errSave != nil {
			return merged, fmt.Errorf("%w: %v", ErrPersistFailed, errSave)
		}
		return merged, nil
	})
	if shared {
		log.Debug("token refresh shared with a concurrent caller")
	}
	pair, _ := v.(TokenPair)
	return pair, err
}

// Renew refreshes after the API rejected the current access token. A failed save is logged
// and the refreshed pair stays current for this process.
func (s *TokenSource) Renew(ctx context.Context) error {
	_, err := s.Refresh(ctx)
	if errors.Is(err, ErrPersistFailed) {
		log.Warnf("access token renewed but not saved: %v", err)
		return nil
	}
	return err
}

// Store saves a pair obtained from a code exchange and makes it current.
func (s *TokenSource) Store(ctx context.Context, pair TokenPair) error {
	if err := pair.Validate(); err != nil {
		return err
	}
	s.remember(pair)
	if err := s.store.Save(ctx, pair); err != nil {
		return fmt.Errorf("%w: %v", ErrPersistFailed, err)
	}
	return nil
}

func (s *TokenSource) remember(pair TokenPair) {
	s.mu.Lock()
	s.cached = &pair
	s.mu.Unlock()
}

// Reset drops the cached pair so the next Current reads the store again. Used when the
// credentials were changed by another process.
func (s *TokenSource) Reset() {
	s.mu.Lock()
	s.cached = nil
	s.mu.Unlock()
}
