// README: Per-identity token-bucket rate limiting with a strict tier for money routes.
package middleware

import (
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"
)

type Tier struct {
	Limit rate.Limit
	Burst int
	Name  string
}

var (
	// Financial endpoints (withdrawals, resolutions).
	TierStrict = Tier{Limit: rate.Limit(2), Burst: 5, Name: "strict"}
	// Everything else.
	TierGeneral = Tier{Limit: rate.Limit(10), Burst: 20, Name: "general"}
)

type visitor struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// RateLimiter keeps one token bucket per identity+tier. Buckets idle for
// longer than the TTL are evicted by a background sweep.
type RateLimiter struct {
	mu       sync.Mutex
	visitors map[string]*visitor
	ttl      time.Duration
}

func NewRateLimiter() *RateLimiter {
	rl := &RateLimiter{
		visitors: make(map[string]*visitor),
		ttl:      3 * time.Minute,
	}
	go rl.sweep()
	return rl
}

func (rl *RateLimiter) get(key string, t Tier) *rate.Limiter {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	v, ok := rl.visitors[key]
	if !ok {
		v = &visitor{limiter: rate.NewLimiter(t.Limit, t.Burst)}
		rl.visitors[key] = v
	}
	v.lastSeen = time.Now()
	return v.limiter
}

func (rl *RateLimiter) sweep() {
	for {
		time.Sleep(time.Minute)
		rl.mu.Lock()
		for key, v := range rl.visitors {
			if time.Since(v.lastSeen) > rl.ttl {
				delete(rl.visitors, key)
			}
		}
		rl.mu.Unlock()
	}
}

// Limit returns middleware enforcing the tier. The bucket key prefers the
// authenticated actor so one user cannot starve another behind a NAT; the
// same user gets separate quotas per tier.
func (rl *RateLimiter) Limit(t Tier) gin.HandlerFunc {
	return func(c *gin.Context) {
		identity := "ip:" + c.ClientIP()
		if actor, ok := ActorFrom(c); ok {
			identity = "user:" + string(actor.ID)
		}
		if !rl.get(identity+":"+t.Name, t).Allow() {
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{"error": "rate limit exceeded"})
			return
		}
		c.Next()
	}
}
