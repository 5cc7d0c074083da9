package store

import (
	"context"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newMockStore(t *testing.T) (*Store, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return NewWithDB(db, "pgx"), mock
}

func serviceRow(id, ownerID uuid.UUID, name string) *sqlmock.Rows {
	now := time.Now().UTC()
	return sqlmock.NewRows([]string{"id", "name", "owner_id", "updated_at", "created_at"}).
		AddRow(id, name, ownerID, now, now)
}

func TestGetServiceByName(t *testing.T) {
	st, mock := newMockStore(t)
	id, ownerID := uuid.New(), uuid.New()

	mock.ExpectQuery(regexp.QuoteMeta(`SELECT * FROM service WHERE name = $1`)).
		WithArgs("web").
		WillReturnRows(serviceRow(id, ownerID, "web"))

	service, err := st.GetServiceByName(context.Background(), "web")
	require.NoError(t, err)
	assert.Equal(t, id, service.ID)
	assert.Equal(t, "web", service.Name)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGetServiceByNameNotFound(t *testing.T) {
	st, mock := newMockStore(t)

	mock.ExpectQuery(regexp.QuoteMeta(`SELECT * FROM service WHERE name = $1`)).
		WithArgs("missing").
		WillReturnRows(sqlmock.NewRows([]string{"id", "name", "owner_id", "updated_at", "created_at"}))

	_, err := st.GetServiceByName(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestCreateServiceUniqueViolation(t *testing.T) {
	st, mock := newMockStore(t)

	mock.ExpectQuery(regexp.QuoteMeta(`INSERT INTO service`)).
		WillReturnError(&pgconn.PgError{Code: "23505"})

	_, err := st.CreateService(context.Background(), "web", uuid.New())
	require.Error(t, err)
	assert.True(t, IsUniqueViolation(err))
}

func TestFindDeploymentByHost(t *testing.T) {
	st, mock := newMockStore(t)
	id, serviceID, ownerID := uuid.New(), uuid.New(), uuid.New()
	now := time.Now().UTC()
	hostPort, containerPort := int16(12345), int16(8080)

	rows := sqlmock.NewRows([]string{
		"id", "service_id", "owner_id", "host_port", "container_port",
		"last_accessed_at", "updated_at", "created_at",
	}).AddRow(id, serviceID, ownerID, hostPort, containerPort, nil, now, now)

	mock.ExpectQuery(`SELECT deployment\.\* FROM deployment`).
		WithArgs("app.example.com").
		WillReturnRows(rows)

	deployment, err := st.FindDeploymentByHost(context.Background(), "app.example.com")
	require.NoError(t, err)
	assert.Equal(t, id, deployment.ID)
	require.NotNil(t, deployment.HostPort)
	assert.Equal(t, hostPort, *deployment.HostPort)
	assert.Nil(t, deployment.LastAccessedAt)
}

func TestFindDeploymentByHostNotFound(t *testing.T) {
	st, mock := newMockStore(t)

	mock.ExpectQuery(`SELECT deployment\.\* FROM deployment`).
		WithArgs("unknown.example.com").
		WillReturnRows(sqlmock.NewRows([]string{"id"}))

	_, err := st.FindDeploymentByHost(context.Background(), "unknown.example.com")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestTouchDeployment(t *testing.T) {
	st, mock := newMockStore(t)
	id := uuid.New()

	mock.ExpectExec(regexp.QuoteMeta(`UPDATE deployment SET last_accessed_at`)).
		WithArgs(sqlmock.AnyArg(), id).
		WillReturnResult(sqlmock.NewResult(0, 1))

	assert.NoError(t, st.TouchDeployment(context.Background(), id))
}

func TestTouchDeploymentNotFound(t *testing.T) {
	st, mock := newMockStore(t)
	id := uuid.New()

	mock.ExpectExec(regexp.QuoteMeta(`UPDATE deployment SET last_accessed_at`)).
		WithArgs(sqlmock.AnyArg(), id).
		WillReturnResult(sqlmock.NewResult(0, 0))

	assert.ErrorIs(t, st.TouchDeployment(context.Background(), id), ErrNotFound)
}

func TestIsUniqueViolation(t *testing.T) {
	assert.True(t, IsUniqueViolation(&pgconn.PgError{Code: "23505"}))
	assert.False(t, IsUniqueViolation(&pgconn.PgError{Code: "23503"}))
	assert.False(t, IsUniqueViolation(errors.New("plain error")))
	assert.False(t, IsUniqueViolation(nil))
}
