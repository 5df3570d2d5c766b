package auth

import (
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
)

// Revoker remembers logged-out token ids until the tokens would have expired
// anyway. It is bounded; when full the oldest revocations are evicted first.
type Revoker struct {
	ids *expirable.LRU[string, struct{}]
}

// NewRevoker keeps up to size ids, each for at most ttl.
func NewRevoker(size int, ttl time.Duration) *Revoker {
	if size <= 0 {
		size = 10000
	}
	return &Revoker{ids: expirable.NewLRU[string, struct{}](size, nil, ttl)}
}

func (r *Revoker) Revoke(jti string) {
	if jti != "" {
		r.ids.Add(jti, struct{}{})
	}
}

func (r *Revoker) IsRevoked(jti string) bool {
	return r.ids.Contains(jti)
}

func (r *Revoker) Len() int {
	return r.ids.Len()
}
