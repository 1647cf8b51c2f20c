// internalauth.go guards the privileged /internal endpoints (principal
// provisioning, credential rotation, deletion). Two independent checks apply:
// the caller's address must fall inside a trusted network, and the request
// must carry the static admin token. The token is stored only as a bcrypt
// hash; there is no way to recover it from configuration.
package middleware

import (
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"golang.org/x/crypto/bcrypt"
)

// InternalTokenHeader carries the static admin token on internal requests.
const InternalTokenHeader = "X-Internal-Token"

// InternalAuthMiddleware builds the guard for the internal endpoint group.
// It fails at construction on an unparsable CIDR or a missing token hash,
// so a misconfigured deployment refuses to start rather than silently
// exposing the provisioning API.
func InternalAuthMiddleware(trustedCIDRs []string, adminTokenHash string) (gin.HandlerFunc, error) {
	if adminTokenHash == "" {
		return nil, fmt.Errorf("internal auth: admin token hash is not configured")
	}

	networks := make([]*net.IPNet, 0, len(trustedCIDRs))
	for _, cidr := range trustedCIDRs {
		_, network, err := net.ParseCIDR(strings.TrimSpace(cidr))
		if err != nil {
			return nil, fmt.Errorf("internal auth: invalid trusted CIDR %q: %w", cidr, err)
		}
		networks = append(networks, network)
	}

	return func(c *gin.Context) {
		ip := net.ParseIP(c.ClientIP())
		if ip == nil || !ipInNetworks(ip, networks) {
			slog.Warn("internal endpoint request from untrusted address",
				"client_ip", c.ClientIP(), "path", c.Request.URL.Path)
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "forbidden"})
			return
		}

		token := c.GetHeader(InternalTokenHeader)
		if token == "" || bcrypt.CompareHashAndPassword([]byte(adminTokenHash), []byte(token)) != nil {
			slog.Warn("internal endpoint request with missing or invalid token",
				"client_ip", c.ClientIP(), "path", c.Request.URL.Path)
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
			return
		}

		c.Next()
	}, nil
}

func ipInNetworks(ip net.IP, networks []*net.IPNet) bool {
	for _, network := range networks {
		if network.Contains(ip) {
			return true
		}
	}
	return false
}
