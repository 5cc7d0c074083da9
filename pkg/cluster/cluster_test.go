package cluster

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"regexp"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/doseidotio/doseid/pkg/store"
)

func TestLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cluster-init.json")
	require.NoError(t, os.WriteFile(path, []byte(`{
		"name": "api.example.com",
		"dosei_public_key": "ssh-ed25519 AAAA... dosei",
		"accounts": [
			{"name": "alice", "ssh_keys": ["ssh-ed25519 BBBB... alice"]}
		]
	}`), 0o600))

	bootstrap, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "api.example.com", bootstrap.Name)
	assert.Equal(t, "ssh-ed25519 AAAA... dosei", bootstrap.DoseiPublicKey)
	require.Len(t, bootstrap.Accounts, 1)
	assert.Equal(t, "alice", bootstrap.Accounts[0].Name)
	assert.Equal(t, []string{"ssh-ed25519 BBBB... alice"}, bootstrap.Accounts[0].SSHKeys)
}

func TestLoadErrors(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.json"))
	assert.Error(t, err)

	path := filepath.Join(t.TempDir(), "cluster-init.json")
	require.NoError(t, os.WriteFile(path, []byte(`not json`), 0o600))
	_, err = Load(path)
	assert.Error(t, err)

	require.NoError(t, os.WriteFile(path, []byte(`{"accounts": []}`), 0o600))
	_, err = Load(path)
	assert.Error(t, err)
}

func TestName(t *testing.T) {
	SetName("api.example.com")
	assert.Equal(t, "api.example.com", Name())
}

type failingRequester struct {
	requests int
}

func (f *failingRequester) Request(ctx context.Context, ownerID uuid.UUID, domain string) error {
	f.requests++
	return errors.New("directory unreachable")
}

func TestEnsureCertificateRequestFailureNotFatal(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	st := store.NewWithDB(db, "pgx")

	mock.ExpectQuery(regexp.QuoteMeta(`SELECT * FROM certificate WHERE domain_name = $1`)).
		WithArgs("api.example.com").
		WillReturnRows(sqlmock.NewRows([]string{"id"}))

	requester := &failingRequester{}
	assert.NoError(t, ensureCertificate(context.Background(), st, requester, uuid.New(), "api.example.com"))
	assert.Equal(t, 1, requester.requests)
}

func TestEnsureCertificateSkipsNonFQDN(t *testing.T) {
	requester := &failingRequester{}
	assert.NoError(t, ensureCertificate(context.Background(), nil, requester, uuid.New(), "my-cluster"))
	assert.Zero(t, requester.requests)
}

func TestDashboardDomain(t *testing.T) {
	tests := []struct {
		clusterName string
		want        string
	}{
		{"api.example.com", "dashboard.example.com"},
		{"example.com", "example.com"},
		{"my-api.example.com", "my-dashboard.example.com"},
	}

	for _, tt := range tests {
		t.Run(tt.clusterName, func(t *testing.T) {
			assert.Equal(t, tt.want, DashboardDomain(tt.clusterName))
		})
	}
}
