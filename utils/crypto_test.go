package utils

import (
	"encoding/base64"
	"strings"
	"testing"
	"time"
)

func testKey(t *testing.T, fill byte) *[32]byte {
	t.Helper()
	key, err := DecodeSecretKey(base64.StdEncoding.EncodeToString([]byte(strings.Repeat(string(fill), 32))))
	if err != nil {
		t.Fatalf("DecodeSecretKey: %v", err)
	}
	return key
}

func TestEncryptDecrypt(t *testing.T) {
	key := testKey(t, 'k')
	sealed, err := Encrypt(key, "JBSWY3DPEHPK3PXP")
	if err != nil {
		t.Fatalf("Encrypt: %v", err)
	}
	if strings.Contains(sealed, "JBSWY3DPEHPK3PXP") {
		t.Fatalf("sealed value leaks the plain text")
	}
	again, _ := Encrypt(key, "JBSWY3DPEHPK3PXP")
	if again == sealed {
		t.Fatalf("every seal should use a fresh nonce")
	}
	plain, err := Decrypt(key, sealed)
	if err != nil || plain != "JBSWY3DPEHPK3PXP" {
		t.Fatalf("Decrypt: %q %v", plain, err)
	}
	if _, err := Decrypt(testKey(t, 'x'), sealed); err != ErrDecrypt {
		t.Fatalf("wrong key should fail with ErrDecrypt, got %v", err)
	}
	if _, err := Decrypt(key, "not base64!"); err != ErrDecrypt {
		t.Fatalf("malformed input should fail with ErrDecrypt, got %v", err)
	}
	if _, err := Decrypt(key, base64.StdEncoding.EncodeToString([]byte("short"))); err != ErrDecrypt {
		t.Fatalf("short input should fail with ErrDecrypt, got %v", err)
	}
}

func TestDecodeSecretKeyRejectsBadKeys(t *testing.T) {
	if _, err := DecodeSecretKey("%%%"); err == nil {
		t.Fatalf("expected a decode error")
	}
	if _, err := DecodeSecretKey(base64.StdEncoding.EncodeToString([]byte("too short"))); err == nil {
		t.Fatalf("expected a length error")
	}
}

func TestRandomString(t *testing.T) {
	const alphabet = "ABCDEF0123"
	s, err := RandomString(64, alphabet)
	if err != nil {
		t.Fatalf("RandomString: %v", err)
	}
	if len(s) != 64 {
		t.Fatalf("expected 64 characters, got %d", len(s))
	}
	for _, r := range s {
		if !strings.ContainsRune(alphabet, r) {
			t.Fatalf("character %q is not in the alphabet", r)
		}
	}
	if _, err := RandomString(4, ""); err == nil {
		t.Fatalf("empty alphabet should fail")
	}
}

func TestJwt(t *testing.T) {
	secret := []byte("test-secret")
	token, err := JwtGenerate(secret, 42, TokenScopeSession, time.Hour)
	if err != nil {
		t.Fatalf("JwtGenerate: %v", err)
	}
	claims, err := JwtValidate(secret, token)
	if err != nil {
		t.Fatalf("JwtValidate: %v", err)
	}
	if claims.ID != 42 || claims.Scope != TokenScopeSession || claims.RegisteredClaims.ID == "" {
		t.Fatalf("unexpected claims %+v", claims)
	}
	if _, err := JwtValidate([]byte("other-secret"), token); err == nil {
		t.Fatalf("a token signed with another secret should be rejected")
	}
	expired, err := JwtGenerate(secret, 42, TokenScopeSession, -time.Minute)
	if err != nil {
		t.Fatalf("JwtGenerate: %v", err)
	}
	if _, err := JwtValidate(secret, expired); err == nil {
		t.Fatalf("an expired token should be rejected")
	}
}
