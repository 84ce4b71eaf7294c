package wsserver

import (
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// peerLimiter applies a token bucket per peer id to inbound choose frames.
// A nil limiter allows everything.
type peerLimiter struct {
	limit rate.Limit
	burst int

	mu     sync.Mutex
	byPeer map[string]*rate.Limiter
}

func newPeerLimiter(rps float64, burst int) *peerLimiter {
	if rps <= 0 || burst <= 0 {
		return nil
	}
	return &peerLimiter{
		limit:  rate.Limit(rps),
		burst:  burst,
		byPeer: make(map[string]*rate.Limiter),
	}
}

// Allow reports whether the peer may submit one more frame at now.
func (l *peerLimiter) Allow(peerID string, now time.Time) bool {
	if l == nil {
		return true
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	lim, ok := l.byPeer[peerID]
	if !ok {
		lim = rate.NewLimiter(l.limit, l.burst)
		l.byPeer[peerID] = lim
	}
	return lim.AllowN(now, 1)
}

// Forget drops the bucket of a departed peer.
func (l *peerLimiter) Forget(peerID string) {
	if l == nil {
		return
	}
	l.mu.Lock()
	delete(l.byPeer, peerID)
	l.mu.Unlock()
}
