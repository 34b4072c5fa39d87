package utils

import (
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt"

	"paydesk/internal/config"
)

func TestManagerRoundTrip(t *testing.T) {
	m, err := NewManager("secret")
	if err != nil {
		t.Fatal(err)
	}
	tok, err := m.NewJWT(Claims{Email: "a@b.c", StandardClaims: jwt.StandardClaims{Subject: "ws-1"}}, time.Hour)
	if err != nil {
		t.Fatal(err)
	}
	claims, err := m.Parse(tok)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if claims.Subject != "ws-1" || claims.Email != "a@b.c" {
		t.Errorf("claims = %+v", claims)
	}

	exp, err := TokenExpiry(tok)
	if err != nil {
		t.Fatal(err)
	}
	if d := time.Until(exp); d < 59*time.Minute || d > time.Hour+time.Minute {
		t.Errorf("expiry %v out of range", d)
	}
}

func TestManagerRejectsForeignSignature(t *testing.T) {
	a, _ := NewManager("one")
	b, _ := NewManager("two")
	tok, _ := a.NewJWT(Claims{}, time.Hour)
	if _, err := b.Parse(tok); err == nil {
		t.Fatal("expected signature error")
	}
}

func TestManagerRejectsExpired(t *testing.T) {
	m, _ := NewManager("secret")
	m.now = func() time.Time { return time.Now().Add(-2 * time.Hour) }
	tok, _ := m.NewJWT(Claims{}, time.Hour)
	if _, err := m.Parse(tok); err == nil {
		t.Fatal("expected expiry error")
	}
}

func TestNewManagerEmptyKey(t *testing.T) {
	if _, err := NewManager(""); err == nil {
		t.Fatal("expected error")
	}
}

func TestNewRefreshToken(t *testing.T) {
	m, _ := NewManager("secret")
	a, _ := m.NewRefreshToken()
	b, _ := m.NewRefreshToken()
	if len(a) != 64 || a == b {
		t.Fatalf("refresh tokens %q %q", a, b)
	}
}

func TestS3PresignerPresignPut(t *testing.T) {
	p, err := NewS3Presigner(config.StorageConfig{
		Endpoint:  "http://localhost:9000",
		Region:    "us-east-1",
		Bucket:    "receipts",
		AccessKey: "key",
		SecretKey: "secret",
	})
	if err != nil {
		t.Fatal(err)
	}
	upload, file, err := p.PresignPut("payments/a.pdf", "application/pdf", 10)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.HasPrefix(upload, "http://localhost:9000/receipts/payments/a.pdf?") || !strings.Contains(upload, "X-Amz-Signature=") {
		t.Errorf("upload url = %s", upload)
	}
	if file != "http://localhost:9000/receipts/payments/a.pdf" {
		t.Errorf("file url = %s", file)
	}
}
