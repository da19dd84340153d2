package githubauth

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/pem"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

func generateTestKeyPEM(t *testing.T) string {
	t.Helper()
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatalf("failed to generate key: %v", err)
	}
	der := x509.MarshalPKCS1PrivateKey(key)
	block := &pem.Block{Type: "RSA PRIVATE KEY", Bytes: der}
	return string(pem.EncodeToMemory(block))
}

func TestRenewJWTClaims(t *testing.T) {
	t.Parallel()

	pemKey := generateTestKeyPEM(t)
	a, err := New(context.Background(), Config{
		AppID:      "12345",
		PrivateKey: pemKey,
		Requester:  "hubcast-test",
	})
	if err != nil {
		t.Fatalf("failed to construct authenticator: %v", err)
	}

	signed, expiresAt, err := a.renewJWT(context.Background())
	if err != nil {
		t.Fatalf("renewJWT failed: %v", err)
	}

	tok, _, err := jwt.NewParser().ParseUnverified(signed, jwt.MapClaims{})
	if err != nil {
		t.Fatalf("failed to parse signed jwt: %v", err)
	}
	claims := tok.Claims.(jwt.MapClaims)

	iss, _ := claims.GetSubject()
	_ = iss
	issuer, err := claims.GetIssuer()
	if err != nil || issuer != "12345" {
		t.Fatalf("issuer = %q, want 12345", issuer)
	}

	exp, err := claims.GetExpirationTime()
	if err != nil {
		t.Fatalf("failed to get exp: %v", err)
	}
	iat, err := claims.GetIssuedAt()
	if err != nil {
		t.Fatalf("failed to get iat: %v", err)
	}

	if got := exp.Time.Sub(iat.Time); got < 10*time.Minute || got > 11*time.Minute {
		t.Fatalf("exp-iat = %v, want between 10m and 11m", got)
	}

	if expiresAt != exp.Unix() {
		t.Fatalf("returned expiresAt %d != claim exp %d", expiresAt, exp.Unix())
	}
}

func TestGetJWTIsCached(t *testing.T) {
	t.Parallel()

	pemKey := generateTestKeyPEM(t)
	a, err := New(context.Background(), Config{
		AppID:      "1",
		PrivateKey: pemKey,
		Requester:  "hubcast-test",
	})
	if err != nil {
		t.Fatalf("failed to construct authenticator: %v", err)
	}

	ctx := context.Background()
	first, err := a.GetJWT(ctx)
	if err != nil {
		t.Fatalf("GetJWT failed: %v", err)
	}
	second, err := a.GetJWT(ctx)
	if err != nil {
		t.Fatalf("GetJWT failed: %v", err)
	}
	if first != second {
		t.Fatalf("expected cached jwt to be reused")
	}
}
