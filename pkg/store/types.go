package store

import (
	"time"

	"github.com/google/uuid"
)

// Account is a platform user able to own services and certificates.
type Account struct {
	ID        uuid.UUID `db:"id" json:"id"`
	Name      string    `db:"name" json:"name"`
	Password  *string   `db:"password" json:"password"`
	UpdatedAt time.Time `db:"updated_at" json:"updated_at"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
}

// AccountSSHKey is a public key registered for bearer authentication.
// The fingerprint is unique across all accounts.
type AccountSSHKey struct {
	ID             uuid.UUID `db:"id" json:"id"`
	KeyFingerprint string    `db:"key_fingerprint" json:"key_fingerprint"`
	SSHKey         string    `db:"ssh_key" json:"ssh_key"`
	AccountID      uuid.UUID `db:"account_id" json:"account_id"`
	UpdatedAt      time.Time `db:"updated_at" json:"updated_at"`
	CreatedAt      time.Time `db:"created_at" json:"created_at"`
}

// Service is a named group of deployments owned by one account.
type Service struct {
	ID        uuid.UUID `db:"id" json:"id"`
	Name      string    `db:"name" json:"name"`
	OwnerID   uuid.UUID `db:"owner_id" json:"owner_id"`
	UpdatedAt time.Time `db:"updated_at" json:"updated_at"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
}

// Deployment is a single container instance of a service. Its ID doubles as
// the container name and the image tag suffix.
type Deployment struct {
	ID             uuid.UUID  `db:"id" json:"id"`
	ServiceID      uuid.UUID  `db:"service_id" json:"service_id"`
	OwnerID        uuid.UUID  `db:"owner_id" json:"owner_id"`
	HostPort       *int16     `db:"host_port" json:"host_port"`
	ContainerPort  *int16     `db:"container_port" json:"container_port"`
	LastAccessedAt *time.Time `db:"last_accessed_at" json:"last_accessed_at"`
	UpdatedAt      time.Time  `db:"updated_at" json:"updated_at"`
	CreatedAt      time.Time  `db:"created_at" json:"created_at"`
}

// Ingress binds an external hostname to a service.
type Ingress struct {
	ID        uuid.UUID `db:"id" json:"id"`
	ServiceID uuid.UUID `db:"service_id" json:"service_id"`
	OwnerID   uuid.UUID `db:"owner_id" json:"owner_id"`
	Host      string    `db:"host" json:"host"`
	Path      *string   `db:"path" json:"path"`
	UpdatedAt time.Time `db:"updated_at" json:"updated_at"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
}

// Certificate is an issued TLS certificate for a single domain.
type Certificate struct {
	ID          uuid.UUID `db:"id" json:"id"`
	DomainName  string    `db:"domain_name" json:"domain_name"`
	Certificate string    `db:"certificate" json:"certificate"`
	PrivateKey  string    `db:"private_key" json:"private_key"`
	ExpiresAt   time.Time `db:"expires_at" json:"expires_at"`
	OwnerID     uuid.UUID `db:"owner_id" json:"owner_id"`
	UpdatedAt   time.Time `db:"updated_at" json:"updated_at"`
	CreatedAt   time.Time `db:"created_at" json:"created_at"`
}

// Session is an issued bearer credential. Token is the only lookup key.
type Session struct {
	ID           uuid.UUID `db:"id" json:"id"`
	Token        string    `db:"token" json:"token"`
	RefreshToken string    `db:"refresh_token" json:"refresh_token"`
	AccountID    uuid.UUID `db:"account_id" json:"account_id"`
	UpdatedAt    time.Time `db:"updated_at" json:"updated_at"`
	CreatedAt    time.Time `db:"created_at" json:"created_at"`
}
