package certificate

import (
	"context"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/pem"
	"math/big"
	"regexp"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/doseidotio/doseid/pkg/store"
)

func newMockManager(t *testing.T) (*Manager, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return NewManager(store.NewWithDB(db, "pgx")), mock
}

func TestChallengeTokenValue(t *testing.T) {
	m, _ := newMockManager(t)

	m.challengeTokens.Set("token-1", "token-1.keyauth", cacheLifespan)

	value, ok := m.ChallengeTokenValue("token-1")
	require.True(t, ok)
	assert.Equal(t, "token-1.keyauth", value)

	_, ok = m.ChallengeTokenValue("unknown")
	assert.False(t, ok)
}

func TestChallengeTokenValueRefreshesLifespan(t *testing.T) {
	m, _ := newMockManager(t)

	m.challengeTokens.Set("token-1", "token-1.keyauth", 50*time.Millisecond)
	time.Sleep(20 * time.Millisecond)

	_, ok := m.ChallengeTokenValue("token-1")
	require.True(t, ok)
	time.Sleep(40 * time.Millisecond)

	// Without the refresh the original 50ms lifespan would have elapsed.
	_, ok = m.ChallengeTokenValue("token-1")
	assert.True(t, ok)
}

func TestClaimVerifiedExactlyOnce(t *testing.T) {
	m, _ := newMockManager(t)
	pc := &pendingCertificate{domainName: "app.example.com"}
	m.pending.Set(pc.domainName, pc, cacheLifespan)

	var claims int32
	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if m.claimVerified(pc) {
				atomic.AddInt32(&claims, 1)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), claims)
	_, found := m.pending.Get(pc.domainName)
	assert.False(t, found)
}

func selfSignedChain(t *testing.T, domain string, notAfter time.Time) [][]byte {
	t.Helper()
	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	require.NoError(t, err)
	template := &x509.Certificate{
		SerialNumber: big.NewInt(1),
		Subject:      pkix.Name{CommonName: domain},
		DNSNames:     []string{domain},
		NotBefore:    notAfter.Add(-90 * 24 * time.Hour),
		NotAfter:     notAfter,
	}
	der, err := x509.CreateCertificate(rand.Reader, template, template, &key.PublicKey, key)
	require.NoError(t, err)
	return [][]byte{der}
}

func TestEncodeChainPEMPreservesExpiry(t *testing.T) {
	notAfter := time.Now().Add(60 * 24 * time.Hour).Truncate(time.Second).UTC()
	chain := selfSignedChain(t, "app.example.com", notAfter)

	certPEM, err := encodeChainPEM(chain)
	require.NoError(t, err)

	block, _ := pem.Decode([]byte(certPEM))
	require.NotNil(t, block)
	leaf, err := x509.ParseCertificate(block.Bytes)
	require.NoError(t, err)
	assert.Equal(t, notAfter, leaf.NotAfter.UTC())
}

func TestEncodeKeyPEM(t *testing.T) {
	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	require.NoError(t, err)

	keyPEM, err := encodeKeyPEM(key)
	require.NoError(t, err)

	block, _ := pem.Decode([]byte(keyPEM))
	require.NotNil(t, block)
	assert.Equal(t, "PRIVATE KEY", block.Type)
	parsed, err := x509.ParsePKCS8PrivateKey(block.Bytes)
	require.NoError(t, err)
	assert.IsType(t, &ecdsa.PrivateKey{}, parsed)
}

func certificateRows(ownerID uuid.UUID, domain string, expiresAt time.Time) *sqlmock.Rows {
	now := time.Now().UTC()
	return sqlmock.NewRows([]string{
		"id", "domain_name", "certificate", "private_key",
		"expires_at", "owner_id", "updated_at", "created_at",
	}).AddRow(uuid.New(), domain, "cert-pem", "key-pem", expiresAt, ownerID, now, now)
}

func TestCheckForRenewals(t *testing.T) {
	m, mock := newMockManager(t)
	ownerID := uuid.New()
	expiresAt := time.Now().UTC().Add(10 * 24 * time.Hour)

	mock.ExpectQuery(regexp.QuoteMeta(`SELECT * FROM certificate WHERE expires_at < $1`)).
		WillReturnRows(certificateRows(ownerID, "app.example.com", expiresAt))

	var requested []string
	m.request = func(ctx context.Context, owner uuid.UUID, domain string) error {
		assert.Equal(t, ownerID, owner)
		requested = append(requested, domain)
		return nil
	}

	require.NoError(t, m.CheckForRenewals(context.Background()))
	assert.Equal(t, []string{"app.example.com"}, requested)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCheckForRenewalsNothingExpiring(t *testing.T) {
	m, mock := newMockManager(t)

	mock.ExpectQuery(regexp.QuoteMeta(`SELECT * FROM certificate WHERE expires_at < $1`)).
		WillReturnRows(sqlmock.NewRows([]string{"id"}))

	var requests int
	m.request = func(ctx context.Context, owner uuid.UUID, domain string) error {
		requests++
		return nil
	}

	require.NoError(t, m.CheckForRenewals(context.Background()))
	assert.Zero(t, requests)
}
