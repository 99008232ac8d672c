package token

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/rs/zerolog"

	"gatecheck/internal/model"
	"gatecheck/internal/repo"
)

func TestGenerate(t *testing.T) {
	seen := make(map[string]bool)
	for i := 0; i < 100; i++ {
		tok, err := Generate()
		if err != nil {
			t.Fatalf("generate: %v", err)
		}
		if len(tok) != tokenLength {
			t.Fatalf("want %d chars, got %d", tokenLength, len(tok))
		}
		for _, c := range tok {
			if !strings.ContainsRune(tokenAlphabet, c) {
				t.Fatalf("character %q outside alphabet", c)
			}
		}
		if seen[tok] {
			t.Fatal("duplicate token generated")
		}
		seen[tok] = true
	}
}

func TestNewPairCoversBothPurposes(t *testing.T) {
	pair, err := NewPair("ev1", "sup1")
	if err != nil {
		t.Fatal(err)
	}
	if len(pair) != 2 {
		t.Fatalf("want 2 tokens, got %d", len(pair))
	}
	purposes := map[model.TokenPurpose]bool{}
	for _, tok := range pair {
		purposes[tok.Purpose] = true
		if tok.EventID != "ev1" || tok.SupplierID != "sup1" {
			t.Fatalf("token not bound to supplier: %+v", tok)
		}
	}
	if !purposes[model.PurposeRegistration] || !purposes[model.PurposeAdmin] {
		t.Fatalf("missing purpose: %v", purposes)
	}
}

func newRegistry(t *testing.T) (*Registry, repo.Repository, []model.Token) {
	t.Helper()
	r := repo.NewMemoryRepository()
	log := zerolog.Nop()
	ctx := context.Background()

	if err := r.CreateEvent(ctx, &model.Event{ID: "ev1", Name: "Expo"}); err != nil {
		t.Fatal(err)
	}
	pair, err := NewPair("ev1", "sup1")
	if err != nil {
		t.Fatal(err)
	}
	sup := &model.Supplier{ID: "sup1", EventID: "ev1", Name: "Acme", Limit: 5, Active: true}
	if err := r.CreateSupplierTx(ctx, sup, pair); err != nil {
		t.Fatal(err)
	}
	return NewRegistry(r, &log), r, pair
}

func tokenFor(pair []model.Token, p model.TokenPurpose) string {
	for _, tok := range pair {
		if tok.Purpose == p {
			return tok.Token
		}
	}
	return ""
}

func TestResolve(t *testing.T) {
	reg, _, pair := newRegistry(t)
	ctx := context.Background()

	event, supplier, err := reg.Resolve(ctx, tokenFor(pair, model.PurposeRegistration), model.PurposeRegistration)
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if event.ID != "ev1" || supplier.ID != "sup1" {
		t.Fatalf("resolved wrong entities: %s %s", event.ID, supplier.ID)
	}
}

func TestResolveUnknownToken(t *testing.T) {
	reg, _, _ := newRegistry(t)
	_, _, err := reg.Resolve(context.Background(), "nope", model.PurposeRegistration)
	if !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("want ErrInvalidToken, got %v", err)
	}
}

func TestResolveWrongPurpose(t *testing.T) {
	reg, _, pair := newRegistry(t)
	_, _, err := reg.Resolve(context.Background(), tokenFor(pair, model.PurposeRegistration), model.PurposeAdmin)
	if !errors.Is(err, ErrWrongPurpose) {
		t.Fatalf("want ErrWrongPurpose, got %v", err)
	}
}

func TestRegenerateInvalidatesOldToken(t *testing.T) {
	reg, _, pair := newRegistry(t)
	ctx := context.Background()
	old := tokenFor(pair, model.PurposeAdmin)

	fresh, err := reg.Regenerate(ctx, "ev1", "sup1", model.PurposeAdmin)
	if err != nil {
		t.Fatalf("regenerate: %v", err)
	}
	if fresh.Token == old {
		t.Fatal("regenerate returned the same token")
	}

	if _, _, err := reg.Resolve(ctx, old, model.PurposeAdmin); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("old token should be dead, got %v", err)
	}
	if _, _, err := reg.Resolve(ctx, fresh.Token, model.PurposeAdmin); err != nil {
		t.Fatalf("new token should resolve: %v", err)
	}

	// the registration token is untouched
	if _, _, err := reg.Resolve(ctx, tokenFor(pair, model.PurposeRegistration), model.PurposeRegistration); err != nil {
		t.Fatalf("sibling token should survive: %v", err)
	}
}
