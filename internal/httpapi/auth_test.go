package httpapi

import (
	"testing"
	"time"

	"stokpos/internal/domain"
	"stokpos/internal/store/memory"
)

func TestLoginAndParseTokenRoundTrip(t *testing.T) {
	auth := NewAuthManager("test-secret-key", time.Hour, memory.NewSeeded())

	resp, err := auth.Login(domain.LoginRequest{Username: "admin", Password: "admin123"})
	if err != nil {
		t.Fatalf("login failed: %v", err)
	}
	if resp.Role != "admin" {
		t.Fatalf("expected admin role, got %s", resp.Role)
	}

	actor, err := auth.ParseToken(resp.AccessToken)
	if err != nil {
		t.Fatalf("parse token failed: %v", err)
	}
	if actor.Username != "admin" || actor.Role != "admin" {
		t.Fatalf("unexpected actor: %+v", actor)
	}
}

func TestParseTokenRejectsGarbage(t *testing.T) {
	auth := NewAuthManager("test-secret-key", time.Hour, nil)

	if _, err := auth.ParseToken("not-a-token"); err == nil {
		t.Fatalf("expected garbage token to be rejected")
	}
}

func TestParseTokenRejectsForeignSecret(t *testing.T) {
	signer := NewAuthManager("secret-one-aaaaaaaaaaaaaaaaaaaaaa", time.Hour, memory.NewSeeded())
	verifier := NewAuthManager("secret-two-bbbbbbbbbbbbbbbbbbbbbb", time.Hour, nil)

	resp, err := signer.Login(domain.LoginRequest{Username: "cashier", Password: "cashier123"})
	if err != nil {
		t.Fatalf("login failed: %v", err)
	}
	if _, err := verifier.ParseToken(resp.AccessToken); err == nil {
		t.Fatalf("expected token signed with another secret to be rejected")
	}
}

func TestCreateCashierValidation(t *testing.T) {
	auth := NewAuthManager("test-secret-key", time.Hour, memory.New())

	if _, err := auth.CreateCashier(domain.CashierCreateRequest{Username: "ab", Password: "longenough"}); err == nil {
		t.Fatalf("expected short username to be rejected")
	}
	if _, err := auth.CreateCashier(domain.CashierCreateRequest{Username: "validname", Password: "123"}); err == nil {
		t.Fatalf("expected short password to be rejected")
	}

	cashier, err := auth.CreateCashier(domain.CashierCreateRequest{Username: "validname", Password: "secret123"})
	if err != nil {
		t.Fatalf("create cashier failed: %v", err)
	}
	if cashier.Role != "cashier" || !cashier.Active {
		t.Fatalf("unexpected cashier: %+v", cashier)
	}

	if _, err := auth.CreateCashier(domain.CashierCreateRequest{Username: "validname", Password: "secret123"}); err == nil {
		t.Fatalf("expected duplicate username to be rejected")
	}

	listed := auth.ListCashiers()
	found := false
	for _, c := range listed {
		if c.Username == "validname" {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected created cashier in listing")
	}
}
