package token

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"

	"github.com/rs/zerolog"

	"gatecheck/internal/model"
	"gatecheck/internal/repo"
)

var (
	ErrInvalidToken = errors.New("token does not exist")
	ErrWrongPurpose = errors.New("token exists but grants a different capability")
)

const (
	tokenAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789"
	tokenLength   = 24
)

// Registry issues and resolves the capability tokens that stand in for
// authentication on supplier-facing links.
type Registry struct {
	repo repo.Repository
	log  *zerolog.Logger
}

func NewRegistry(r repo.Repository, log *zerolog.Logger) *Registry {
	return &Registry{repo: r, log: log}
}

// Generate returns a fresh opaque token: 24 chars over a 62-symbol
// alphabet, ~143 bits of entropy, from crypto/rand.
func Generate() (string, error) {
	buf := make([]byte, tokenLength)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("failed to read random bytes: %w", err)
	}
	for i, b := range buf {
		buf[i] = tokenAlphabet[int(b)%len(tokenAlphabet)]
	}
	return string(buf), nil
}

// NewPair builds the registration and admin tokens created alongside a
// supplier. The caller persists them atomically with the supplier row.
func NewPair(eventID, supplierID string) ([]model.Token, error) {
	out := make([]model.Token, 0, 2)
	for _, purpose := range []model.TokenPurpose{model.PurposeRegistration, model.PurposeAdmin} {
		value, err := Generate()
		if err != nil {
			return nil, err
		}
		out = append(out, model.Token{
			Token:      value,
			EventID:    eventID,
			SupplierID: supplierID,
			Purpose:    purpose,
		})
	}
	return out, nil
}

// Resolve looks a token up and verifies its purpose and that the entities
// it points at still exist. The failure taxonomy is layered so callers can
// show distinct messages for a dead link, a misused link, and a dangling
// one.
func (g *Registry) Resolve(ctx context.Context, value string, expected model.TokenPurpose) (*model.Event, *model.Supplier, error) {
	t, err := g.repo.GetTokenByValue(ctx, value)
	if err != nil {
		if errors.Is(err, repo.ErrTokenNotFound) {
			return nil, nil, ErrInvalidToken
		}
		return nil, nil, err
	}
	if t.Purpose != expected {
		return nil, nil, ErrWrongPurpose
	}

	supplier, err := g.repo.GetSupplierByID(ctx, t.SupplierID)
	if err != nil {
		return nil, nil, err // repo.ErrSupplierNotFound for dangling tokens
	}
	event, err := g.repo.GetEventByID(ctx, t.EventID)
	if err != nil {
		return nil, nil, err
	}
	return event, supplier, nil
}

// Regenerate atomically replaces the (event, supplier, purpose) token.
// The old link is invalid the instant this returns.
func (g *Registry) Regenerate(ctx context.Context, eventID, supplierID string, purpose model.TokenPurpose) (*model.Token, error) {
	if _, err := g.repo.GetSupplierByID(ctx, supplierID); err != nil {
		return nil, err
	}
	value, err := Generate()
	if err != nil {
		return nil, err
	}
	t := &model.Token{
		Token:      value,
		EventID:    eventID,
		SupplierID: supplierID,
		Purpose:    purpose,
	}
	if err := g.repo.RegenerateTokenTx(ctx, t); err != nil {
		return nil, err
	}
	g.log.Info().
		Str("event_id", eventID).
		Str("supplier_id", supplierID).
		Str("purpose", purpose.String()).
		Msg("token regenerated")
	return t, nil
}
