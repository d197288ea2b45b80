package crypto

import (
	"errors"
	"testing"
)

func TestSignVerify(t *testing.T) {
	priv, pub, err := GenerateKeyPair()
	if err != nil {
		t.Fatal(err)
	}
	sig := priv.Sign([]byte("move"))
	if err := pub.Verify([]byte("move"), sig); err != nil {
		t.Fatalf("verify: %v", err)
	}
	if err := pub.Verify([]byte("other"), sig); !errors.Is(err, ErrBadSignature) {
		t.Fatalf("expected ErrBadSignature, got %v", err)
	}
	back, err := PubKeyFromHex(pub.Hex())
	if err != nil || back.Hex() != priv.Public().Hex() {
		t.Fatalf("round trip: %v", err)
	}
	if _, err := PubKeyFromHex("abcd"); err == nil {
		t.Fatal("short key accepted")
	}
}

func TestHashJSONStable(t *testing.T) {
	a, _ := HashJSON(map[string]int{"b": 1, "a": 2})
	b, _ := HashJSON(map[string]int{"a": 2, "b": 1})
	if a != b || len(a) != 64 {
		t.Fatalf("unstable hash %q %q", a, b)
	}
}
