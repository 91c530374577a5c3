package httpapi

import (
	"strings"
	"testing"
)

func TestMintAndVerifyToken(t *testing.T) {
	token, err := MintToken("secret", Identity{UserID: "u1", Email: "u1@example.com"})
	if err != nil {
		t.Fatalf("MintToken: %v", err)
	}

	id, err := VerifyToken("secret", token)
	if err != nil {
		t.Fatalf("VerifyToken: %v", err)
	}
	if id.UserID != "u1" || id.Email != "u1@example.com" {
		t.Errorf("identity = %+v", id)
	}
}

func TestVerifyTokenWrongSecret(t *testing.T) {
	token, _ := MintToken("secret", Identity{UserID: "u1"})
	if _, err := VerifyToken("other", token); err == nil {
		t.Error("token verified with wrong secret")
	}
}

func TestVerifyTokenTampered(t *testing.T) {
	token, _ := MintToken("secret", Identity{UserID: "u1"})
	payload, sig, _ := strings.Cut(token, ".")

	forged, _ := MintToken("attacker", Identity{UserID: "admin"})
	forgedPayload, _, _ := strings.Cut(forged, ".")

	if _, err := VerifyToken("secret", forgedPayload+"."+sig); err == nil {
		t.Error("tampered payload verified")
	}
	if _, err := VerifyToken("secret", payload); err == nil {
		t.Error("token without signature verified")
	}
}

func TestMintTokenRequiresUserID(t *testing.T) {
	if _, err := MintToken("secret", Identity{}); err == nil {
		t.Error("minted token without user id")
	}
}
