package httpclient

import (
	"context"
	"net/url"
	"sync"

	"golang.org/x/time/rate"
)

// HostLimiter paces requests per upstream host: at most `concurrency`
// requests in flight and a token-bucket rate across all callers.
//
//	release, err := lim.Acquire(ctx, rawURL)
//	if err != nil { return err }
//	defer release()
type HostLimiter struct {
	mu          sync.Mutex
	hosts       map[string]*hostSlot
	concurrency int
	rps         rate.Limit
	burst       int
}

type hostSlot struct {
	sem chan struct{}
	lim *rate.Limiter
}

// NewHostLimiter returns a limiter. rps <= 0 disables rate pacing.
func NewHostLimiter(concurrency int, rps float64) *HostLimiter {
	if concurrency < 1 {
		concurrency = 1
	}
	l := rate.Inf
	burst := 1
	if rps > 0 {
		l = rate.Limit(rps)
		burst = max(1, int(rps))
	}
	return &HostLimiter{
		hosts:       make(map[string]*hostSlot),
		concurrency: concurrency,
		rps:         l,
		burst:       burst,
	}
}

// Acquire waits for a rate token and a concurrency slot for rawURL's host.
func (h *HostLimiter) Acquire(ctx context.Context, rawURL string) (func(), error) {
	s := h.slotFor(rawURL)
	if err := s.lim.Wait(ctx); err != nil {
		return nil, err
	}
	select {
	case s.sem <- struct{}{}:
		return func() { <-s.sem }, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (h *HostLimiter) slotFor(rawURL string) *hostSlot {
	key := rawURL
	if u, err := url.Parse(rawURL); err == nil && u.Host != "" {
		key = u.Scheme + "://" + u.Host
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	s, ok := h.hosts[key]
	if !ok {
		s = &hostSlot{
			sem: make(chan struct{}, h.concurrency),
			lim: rate.NewLimiter(h.rps, h.burst),
		}
		h.hosts[key] = s
	}
	return s
}
