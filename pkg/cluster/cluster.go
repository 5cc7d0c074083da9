// Package cluster bootstraps a node from its cluster-init file: the system
// account and its keys, operator accounts, the cluster certificate, and the
// built-in dosei and dashboard services.
package cluster

import (
	"encoding/json"
	"fmt"
	"os"
	"sync"
)

// SystemAccountName is the account that owns the built-in services.
const SystemAccountName = "dosei"

// Bootstrap is the parsed cluster-init file.
type Bootstrap struct {
	Name           string             `json:"name"`
	DoseiPublicKey string             `json:"dosei_public_key"`
	Accounts       []BootstrapAccount `json:"accounts"`
}

// BootstrapAccount declares an operator account and its SSH keys.
type BootstrapAccount struct {
	Name    string   `json:"name"`
	SSHKeys []string `json:"ssh_keys"`
}

// Load reads and parses a cluster-init file.
func Load(path string) (*Bootstrap, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read cluster init file: %w", err)
	}
	var bootstrap Bootstrap
	if err := json.Unmarshal(raw, &bootstrap); err != nil {
		return nil, fmt.Errorf("failed to parse cluster init file: %w", err)
	}
	if bootstrap.Name == "" {
		return nil, fmt.Errorf("cluster init file missing name")
	}
	return &bootstrap, nil
}

var (
	nameMu      sync.RWMutex
	clusterName string
)

// SetName records the cluster name for the lifetime of the process.
func SetName(name string) {
	nameMu.Lock()
	defer nameMu.Unlock()
	clusterName = name
}

// Name returns the cluster name set at init.
func Name() string {
	nameMu.RLock()
	defer nameMu.RUnlock()
	return clusterName
}
