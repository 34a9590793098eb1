package security

import (
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/pem"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/require"

	"referralstats/internal/config"
)

// --- helpers ---
func genRSAKey(t *testing.T) *rsa.PrivateKey {
	t.Helper()

	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)

	return key
}

func writePKCS1PEM(t *testing.T, key *rsa.PrivateKey, dir, name string) string {
	t.Helper()

	path := filepath.Join(dir, name)
	block := &pem.Block{Type: "RSA PRIVATE KEY", Bytes: x509.MarshalPKCS1PrivateKey(key)}
	require.NoError(t, os.WriteFile(path, pem.EncodeToMemory(block), 0o600))

	return path
}

func writePKCS8PEM(t *testing.T, key *rsa.PrivateKey, dir, name string) string {
	t.Helper()

	der, err := x509.MarshalPKCS8PrivateKey(key)
	require.NoError(t, err)

	path := filepath.Join(dir, name)
	block := &pem.Block{Type: "PRIVATE KEY", Bytes: der}
	require.NoError(t, os.WriteFile(path, pem.EncodeToMemory(block), 0o600))

	return path
}

// --- tests ---
func TestNewRS256Signer_LoadsPKCS1AndPKCS8(t *testing.T) {
	dir := t.TempDir()
	key := genRSAKey(t)

	pkcs1 := writePKCS1PEM(t, key, dir, "key_pkcs1.pem")
	pkcs8 := writePKCS8PEM(t, key, dir, "key_pkcs8.pem")

	for _, path := range []string{pkcs1, pkcs8} {
		cfg := &config.JWTConfig{
			PrivateKeyPath: path,
			Issuer:         "issuer-X",
			Audience:       "aud-Y",
		}
		s, err := NewRS256Signer(cfg)

		require.NoError(t, err, "must load %s", path)
		require.NotNil(t, s.Priv)
		require.Equal(t, cfg.Issuer, s.Iss)
		require.Equal(t, cfg.Audience, s.Aud)
		require.Equal(t, time.Hour, s.TTL)
	}
}

func TestMint_VerifiedByVerifier(t *testing.T) {
	dir := t.TempDir()
	key := genRSAKey(t)
	path := writePKCS1PEM(t, key, dir, "key.pem")

	cfg := &config.JWTConfig{
		PrivateKeyPath: path,
		Issuer:         "referral-stats-auth",
		Audience:       "referral-stats",
		TTL:            2 * time.Minute,
	}
	signer, err := NewRS256Signer(cfg)
	require.NoError(t, err)

	now := time.Now()
	tokenStr, err := signer.Mint("indexer-1", []string{ScopeIngest, "stats:read"}, 0)
	require.NoError(t, err)
	require.NotEmpty(t, tokenStr)

	verifier := &RS256Verifier{PubKey: &key.PublicKey, Aud: cfg.Audience, Iss: cfg.Issuer}
	claims, err := verifier.VerifyScope("Bearer "+tokenStr, ScopeIngest)
	require.NoError(t, err)

	require.Equal(t, cfg.Issuer, claims.Issuer)
	require.Equal(t, "indexer-1", claims.Subject)
	require.Contains(t, claims.Audience, cfg.Audience)
	require.NotEmpty(t, claims.ID)
	require.WithinDuration(t, now, claims.IssuedAt.Time, 2*time.Second)
	require.WithinDuration(t, now.Add(2*time.Minute), claims.ExpiresAt.Time, 2*time.Second)
	require.True(t, claims.HasScope("stats:read"))
}

func TestMint_ExplicitTTLAndRSHeader(t *testing.T) {
	key := genRSAKey(t)
	signer := &RS256Signer{Priv: key, TTL: time.Hour}

	tokenStr, err := signer.Mint("sub-1", nil, time.Minute)
	require.NoError(t, err)

	claims := &Claims{}
	tok, err := jwt.ParseWithClaims(tokenStr, claims, func(*jwt.Token) (any, error) {
		return &key.PublicKey, nil
	})
	require.NoError(t, err)
	require.Equal(t, jwt.SigningMethodRS256, tok.Method)
	require.Empty(t, claims.Audience)
	require.Empty(t, claims.Scope)
	require.WithinDuration(t, time.Now().Add(time.Minute), claims.ExpiresAt.Time, 2*time.Second)
}

func TestMint_RequiresSubject(t *testing.T) {
	signer := &RS256Signer{Priv: genRSAKey(t), TTL: time.Hour}

	_, err := signer.Mint("", []string{ScopeIngest}, 0)
	require.Error(t, err)
}

func TestNewRS256Signer_Errors(t *testing.T) {
	_, err := NewRS256Signer(nil)
	require.Error(t, err)

	_, err = NewRS256Signer(&config.JWTConfig{})
	require.ErrorContains(t, err, "private key path is empty")

	cfg := &config.JWTConfig{PrivateKeyPath: filepath.Join(t.TempDir(), "missing.pem")}
	_, err = NewRS256Signer(cfg)
	require.ErrorContains(t, err, "read private key")

	bad := filepath.Join(t.TempDir(), "bad.pem")
	require.NoError(t, os.WriteFile(bad, []byte("not-a-pem"), 0o600))

	_, err = NewRS256Signer(&config.JWTConfig{PrivateKeyPath: bad})
	require.ErrorContains(t, err, "parse private key")
}
