package deployment

import (
	"fmt"
	"math/rand"
	"net"
)

const (
	hostPortMin  = 10000
	hostPortMax  = 20000
	portAttempts = 1000
)

// FindAvailableHostPort finds a free TCP port on the host in [10000, 20000].
//
// Ports are sampled at random and bind-tested on 0.0.0.0; the first port
// that binds is released and returned. Gives up after 1000 attempts.
func FindAvailableHostPort() (int16, error) {
	for i := 0; i < portAttempts; i++ {
		port := hostPortMin + rand.Intn(hostPortMax-hostPortMin+1)
		listener, err := net.Listen("tcp", fmt.Sprintf("0.0.0.0:%d", port))
		if err != nil {
			continue
		}
		listener.Close()
		return int16(port), nil
	}
	return 0, fmt.Errorf("failed to find an available port")
}
