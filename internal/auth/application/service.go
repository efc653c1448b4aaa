// Package application implements the auth/session use cases: account
// creation, password authentication, token verification, and push-button
// pairing, on top of the domain's credential and state-machine types.
package application

import (
	"context"
	"strings"

	"github.com/felixgeelhaar/meridian/internal/auth/domain"
	"github.com/felixgeelhaar/meridian/internal/valuetype"
)

// TokenCache is an optional write-through cache in front of
// VerifyToken; a cache miss always falls back to the store, so
// correctness never depends on a cache being present (see
// infrastructure/cache.RedisCache for the real implementation, and
// NoCache for the zero-config default).
type TokenCache interface {
	Get(ctx context.Context, hash []byte) (username string, ok bool)
	Set(ctx context.Context, hash []byte, username string)
	Invalidate(ctx context.Context, hash []byte)
}

// NoCache is a TokenCache that never caches anything.
type NoCache struct{}

func (NoCache) Get(context.Context, []byte) (string, bool) { return "", false }
func (NoCache) Set(context.Context, []byte, string)        {}
func (NoCache) Invalidate(context.Context, []byte)          {}

// Notifier delivers the one notification §4.G's push-button flow emits
// outside the normal enabled-flag gate.
type Notifier interface {
	PushButtonAuthFinished(ctx context.Context, client valuetype.DeviceID, outcome domain.PushButtonOutcome)
}

// Service implements the auth use cases.
type Service struct {
	users    domain.UserRepository
	tokens   domain.TokenRepository
	cache    TokenCache
	pairing  *domain.PushButtonCoordinator
	notifier Notifier
}

// NewService wires a Service. cache may be NoCache{} when no Redis is
// configured.
func NewService(users domain.UserRepository, tokens domain.TokenRepository, cache TokenCache, notifier Notifier) *Service {
	if cache == nil {
		cache = NoCache{}
	}
	return &Service{
		users:    users,
		tokens:   tokens,
		cache:    cache,
		pairing:  domain.NewPushButtonCoordinator(),
		notifier: notifier,
	}
}

func normalize(username string) string { return strings.ToLower(username) }

// HasAnyUser reports whether any account exists yet, driving the RPC
// core's "initial setup required" exempt-method switch.
func (s *Service) HasAnyUser(ctx context.Context) (bool, error) {
	ok, err := s.users.HasAny(ctx)
	if err != nil {
		return false, valuetype.NewError(valuetype.BackendError, err.Error())
	}
	return ok, nil
}

// CreateUser registers a new account. Returns InvalidUserId /
// BadPassword on validation failure, DuplicateId if the username (case-
// insensitively) already exists.
func (s *Service) CreateUser(ctx context.Context, username, password string) error {
	if existing, ok, err := s.users.Get(ctx, normalize(username)); err != nil {
		return valuetype.NewError(valuetype.BackendError, err.Error())
	} else if ok {
		_ = existing
		return valuetype.NewError(valuetype.DuplicateID, "username already exists")
	}
	u, err := domain.NewUser(username, password)
	if err != nil {
		return err
	}
	if err := s.users.Save(ctx, u); err != nil {
		return valuetype.NewError(valuetype.BackendError, err.Error())
	}
	return nil
}

// Authenticate checks username/password and, on success, mints and
// persists a new token for deviceName.
func (s *Service) Authenticate(ctx context.Context, username, password, deviceName string) (string, error) {
	u, ok, err := s.users.Get(ctx, normalize(username))
	if err != nil {
		return "", valuetype.NewError(valuetype.BackendError, err.Error())
	}
	if !ok || !u.CheckPassword(password) {
		return "", valuetype.NewError(valuetype.Unauthorized, "invalid username or password")
	}
	plaintext, record, err := domain.NewToken(u.Username, deviceName)
	if err != nil {
		return "", valuetype.NewError(valuetype.BackendError, err.Error())
	}
	if err := s.tokens.Save(ctx, record); err != nil {
		return "", valuetype.NewError(valuetype.BackendError, err.Error())
	}
	return plaintext, nil
}

// VerifyToken reports the owning username for a bearer token, consulting
// the cache before the store.
func (s *Service) VerifyToken(ctx context.Context, plaintext string) (username string, ok bool, err error) {
	hash := domain.HashToken(plaintext)
	if cached, hit := s.cache.Get(ctx, hash); hit {
		return cached, true, nil
	}
	t, found, err := s.tokens.FindByHash(ctx, hash)
	if err != nil {
		return "", false, valuetype.NewError(valuetype.BackendError, err.Error())
	}
	if !found {
		return "", false, nil
	}
	s.cache.Set(ctx, hash, t.Username)
	return t.Username, true, nil
}

// Tokens lists every token issued to username (for the Tokens RPC
// method), never exposing plaintext or hash.
func (s *Service) Tokens(ctx context.Context, username string) ([]domain.Token, error) {
	toks, err := s.tokens.ListForUser(ctx, normalize(username))
	if err != nil {
		return nil, valuetype.NewError(valuetype.BackendError, err.Error())
	}
	return toks, nil
}

// RemoveToken revokes a token by id. TokenRepository has no lookup-by-id,
// so a revoked token's cache entry (if any) isn't invalidated here; it
// expires on its own once the cache's TTL elapses, bounding how long a
// just-revoked token can still pass VerifyToken.
func (s *Service) RemoveToken(ctx context.Context, id valuetype.TokenID) error {
	if err := s.tokens.Delete(ctx, id); err != nil {
		return valuetype.NewError(valuetype.BackendError, err.Error())
	}
	return nil
}

// RequestPushButtonAuth starts (or pre-empts) a pairing transaction. Any
// pre-empted transaction's failure outcome is delivered to its original
// requester before this call returns.
func (s *Service) RequestPushButtonAuth(ctx context.Context, deviceName string, requesterClient valuetype.DeviceID) valuetype.PairingTransactionID {
	tx, preempted, preemptedClient := s.pairing.Request(deviceName, requesterClient)
	if preempted != nil && s.notifier != nil {
		s.notifier.PushButtonAuthFinished(ctx, preemptedClient, *preempted)
	}
	return tx
}

// PushButtonPressed resolves the pending transaction as a success,
// mints and persists a token, and notifies the requester.
func (s *Service) PushButtonPressed(ctx context.Context, username, deviceName string) error {
	txID, requesterClient, ok := s.pairing.Pressed()
	if !ok {
		return valuetype.NewError(valuetype.NotFound, "no pending push-button transaction")
	}
	plaintext, record, err := domain.NewToken(username, deviceName)
	if err != nil {
		return valuetype.NewError(valuetype.BackendError, err.Error())
	}
	if err := s.tokens.Save(ctx, record); err != nil {
		return valuetype.NewError(valuetype.BackendError, err.Error())
	}
	if s.notifier != nil {
		s.notifier.PushButtonAuthFinished(ctx, requesterClient, domain.PushButtonOutcome{
			TransactionID: txID, Success: true, Token: plaintext,
		})
	}
	return nil
}

// CancelPushButtonAuth resolves a pending transaction as a failure,
// either because the requester called cancel() explicitly or because
// their connection dropped (tx may be the zero value in that case).
func (s *Service) CancelPushButtonAuth(ctx context.Context, tx valuetype.PairingTransactionID) {
	requesterClient, ok := s.pairing.Cancel(tx)
	if !ok {
		return
	}
	if s.notifier != nil {
		s.notifier.PushButtonAuthFinished(ctx, requesterClient, domain.PushButtonOutcome{
			TransactionID: tx, Success: false,
		})
	}
}
