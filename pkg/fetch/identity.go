package fetch

import (
	"math/rand/v2"
	"net/http"
)

// IdentityPool hands out a random User-Agent per request
type IdentityPool struct {
	agents []string
}

// NewIdentityPool copies agents. An empty list yields requests with Go's default User-Agent.
func NewIdentityPool(agents []string) *IdentityPool {
	return &IdentityPool{agents: append([]string(nil), agents...)}
}

// UserAgent picks one identity uniformly at random
func (p *IdentityPool) UserAgent() string {
	if p == nil || len(p.agents) == 0 {
		return ""
	}
	return p.agents[rand.IntN(len(p.agents))]
}

// Apply sets a random User-Agent on req unless the caller already chose one
func (p *IdentityPool) Apply(req *http.Request) {
	if req.Header.Get("User-Agent") != "" {
		return
	}
	if ua := p.UserAgent(); ua != "" {
		req.Header.Set("User-Agent", ua)
	}
}
