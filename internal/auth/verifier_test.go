package auth

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"testing"
)

func TestVerifyDevToken(t *testing.T) {
	v := &Verifier{Mode: "dev"}
	pr, err := v.Verify("acme:dispatcher")
	if err != nil {
		t.Fatalf("Verify: %v", err)
	}
	if pr.Tenant != "acme" || pr.Role != "dispatcher" {
		t.Fatalf("principal: %+v", pr)
	}
	if _, err := v.Verify("no-colon"); err == nil {
		t.Fatal("malformed dev token accepted")
	}
}

func hs256Token(t *testing.T, secret []byte, claims map[string]any) string {
	t.Helper()
	enc := func(v any) string {
		b, err := json.Marshal(v)
		if err != nil {
			t.Fatalf("marshal: %v", err)
		}
		return base64.RawURLEncoding.EncodeToString(b)
	}
	signing := enc(map[string]string{"alg": "HS256", "typ": "JWT"}) + "." + enc(claims)
	mac := hmac.New(sha256.New, secret)
	mac.Write([]byte(signing))
	return signing + "." + base64.RawURLEncoding.EncodeToString(mac.Sum(nil))
}

func TestVerifyHS256(t *testing.T) {
	secret := []byte("topsecret")
	v := &Verifier{
		Mode:            "hmac",
		HMACSecret:      secret,
		TenantClaim:     "tenant",
		RoleClaim:       "role",
		TechnicianClaim: "sub",
	}
	tok := hs256Token(t, secret, map[string]any{"tenant": "acme", "role": "Technician", "sub": "t_42"})
	pr, err := v.Verify(tok)
	if err != nil {
		t.Fatalf("Verify: %v", err)
	}
	if pr.Tenant != "acme" || pr.Role != "technician" || pr.TechnicianID != "t_42" {
		t.Fatalf("principal: %+v", pr)
	}
}

func TestVerifyHS256BadSignature(t *testing.T) {
	v := &Verifier{Mode: "hmac", HMACSecret: []byte("right"), TenantClaim: "tenant", RoleClaim: "role", TechnicianClaim: "sub"}
	tok := hs256Token(t, []byte("wrong"), map[string]any{"tenant": "acme"})
	if _, err := v.Verify(tok); err == nil {
		t.Fatal("forged token accepted")
	}
}

func TestVerifyHS256MissingTenant(t *testing.T) {
	secret := []byte("topsecret")
	v := &Verifier{Mode: "hmac", HMACSecret: secret, TenantClaim: "tenant", RoleClaim: "role", TechnicianClaim: "sub"}
	tok := hs256Token(t, secret, map[string]any{"role": "admin"})
	if _, err := v.Verify(tok); err == nil {
		t.Fatal("token without tenant claim accepted")
	}
}
