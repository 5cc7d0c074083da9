// Package certificate drives the ACME HTTP-01 lifecycle: on-demand
// requests, a two-phase (internal then external) verification, issuance,
// and a periodic renewal sweep.
package certificate

import (
	"context"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	gocache "github.com/patrickmn/go-cache"
	"golang.org/x/crypto/acme"

	"github.com/doseidotio/doseid/pkg/log"
	"github.com/doseidotio/doseid/pkg/store"
)

const (
	cacheLifespan     = 600 * time.Second
	internalCheckSpan = 5 * time.Second
	renewalCheckSpan  = 24 * time.Hour
	renewalThreshold  = 30 * 24 * time.Hour
	externalMaxChecks = 10
)

// orderHandle owns a pending ACME order. The acme client is stateful and
// all progression on the order must be serialised, so the handle carries
// the mutex.
type orderHandle struct {
	mu       sync.Mutex
	client   *acme.Client
	orderURI string
}

// pendingCertificate tracks a requested certificate between request() and
// issuance. Evicted from the pending cache after the TTL. verified flips
// exactly once, when an internal check hands the entry to the external task.
type pendingCertificate struct {
	domainName string
	ownerID    uuid.UUID
	token      string
	tokenValue string
	order      *orderHandle
	verified   atomic.Bool
}

// Manager is the ACME client state machine.
type Manager struct {
	store           *store.Store
	pending         *gocache.Cache
	challengeTokens *gocache.Cache
	directoryURL    string

	// request is swappable so the renewal sweep can be exercised in tests
	// without a CA.
	request func(ctx context.Context, ownerID uuid.UUID, domain string) error
}

// NewManager creates a certificate manager against the production Let's
// Encrypt directory.
func NewManager(st *store.Store) *Manager {
	m := &Manager{
		store:           st,
		pending:         gocache.New(cacheLifespan, 10*time.Minute),
		challengeTokens: gocache.New(cacheLifespan, 10*time.Minute),
		directoryURL:    acme.LetsEncryptURL,
	}
	m.request = m.Request
	return m
}

// Start launches the internal check loop and the renewal sweep. Both run
// until the context is cancelled.
func (m *Manager) Start(ctx context.Context) {
	logger := log.WithComponent("certificate")
	logger.Info().Msg("certificate server running")
	go m.internalCheckLoop(ctx)
	go m.renewalLoop(ctx)
}

// Request opens a new ACME order for a single domain and registers the
// HTTP-01 challenge token for serving. Verification and issuance proceed
// asynchronously from the check loops.
func (m *Manager) Request(ctx context.Context, ownerID uuid.UUID, domain string) error {
	accountKey, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		return fmt.Errorf("failed to generate account key: %w", err)
	}
	client := &acme.Client{Key: accountKey, DirectoryURL: m.directoryURL}

	if _, err := client.Register(ctx, &acme.Account{}, acme.AcceptTOS); err != nil {
		return fmt.Errorf("failed to register ACME account: %w", err)
	}

	order, err := client.AuthorizeOrder(ctx, acme.DomainIDs(domain))
	if err != nil {
		return fmt.Errorf("failed to create order for %s: %w", domain, err)
	}
	if len(order.AuthzURLs) == 0 {
		return fmt.Errorf("authorization not found for %s", domain)
	}
	authz, err := client.GetAuthorization(ctx, order.AuthzURLs[0])
	if err != nil {
		return fmt.Errorf("failed to fetch authorization for %s: %w", domain, err)
	}
	challenge := findHTTP01Challenge(authz)
	if challenge == nil {
		return fmt.Errorf("http-01 challenge not found for %s", domain)
	}
	keyAuth, err := client.HTTP01ChallengeResponse(challenge.Token)
	if err != nil {
		return fmt.Errorf("failed to compute key authorization: %w", err)
	}

	m.challengeTokens.Set(challenge.Token, keyAuth, cacheLifespan)
	m.pending.Set(domain, &pendingCertificate{
		domainName: domain,
		ownerID:    ownerID,
		token:      challenge.Token,
		tokenValue: keyAuth,
		order:      &orderHandle{client: client, orderURI: order.URI},
	}, cacheLifespan)
	return nil
}

// ChallengeTokenValue returns the key authorization for a challenge token,
// refreshing its cache lifespan on each read.
func (m *Manager) ChallengeTokenValue(token string) (string, bool) {
	value, ok := m.challengeTokens.Get(token)
	if !ok {
		return "", false
	}
	keyAuth := value.(string)
	m.challengeTokens.Set(token, keyAuth, cacheLifespan)
	return keyAuth, true
}

// PendingDomains returns the domains currently awaiting verification.
func (m *Manager) PendingDomains() []string {
	items := m.pending.Items()
	domains := make([]string, 0, len(items))
	for domain := range items {
		domains = append(domains, domain)
	}
	return domains
}

func findHTTP01Challenge(authz *acme.Authorization) *acme.Challenge {
	for _, challenge := range authz.Challenges {
		if challenge.Type == "http-01" {
			return challenge
		}
	}
	return nil
}
