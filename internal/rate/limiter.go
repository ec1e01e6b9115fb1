package rate

import (
	"hash/fnv"
	"sync"
	"time"
)

const shardCount = 32

// Config holds rate limiter tuning parameters. The three tier quotas must
// share one window length; only the limits differ.
type Config struct {
	Anonymous     string
	Authenticated string
	Elevated      string
	SweepInterval time.Duration
}

// Validate parses the tier quotas and rejects mismatched windows.
func (c Config) Validate() error {
	quotas, err := c.quotas()
	if err != nil {
		return err
	}
	window := quotas[TierAnonymous].Window
	for _, q := range quotas {
		if q.Window != window {
			return ErrWindowMismatch
		}
	}
	return nil
}

func (c Config) quotas() (map[Tier]Quota, error) {
	quotas := make(map[Tier]Quota, 3)
	for tier, s := range map[Tier]string{
		TierAnonymous:     c.Anonymous,
		TierAuthenticated: c.Authenticated,
		TierElevated:      c.Elevated,
	} {
		q, err := ParseQuota(s)
		if err != nil {
			return nil, err
		}
		quotas[tier] = q
	}
	return quotas, nil
}

type clientWindow struct {
	stamps []time.Time
}

// prune drops timestamps that fell out of the window.
func (w *clientWindow) prune(cutoff time.Time) {
	keep := 0
	for _, ts := range w.stamps {
		if ts.After(cutoff) {
			break
		}
		keep++
	}
	if keep > 0 {
		w.stamps = append(w.stamps[:0], w.stamps[keep:]...)
	}
}

type shard struct {
	mu      sync.Mutex
	windows map[string]*clientWindow
}

// Limiter admits or rejects requests against per-tier sliding windows.
type Limiter struct {
	quotas map[Tier]Quota
	window time.Duration
	shards [shardCount]*shard

	now func() time.Time

	done      chan struct{}
	closeOnce sync.Once
	wg        sync.WaitGroup
}

// New builds a [Limiter] from cfg and starts the background sweeper when
// cfg.SweepInterval is positive.
func New(cfg Config) (*Limiter, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	quotas, err := cfg.quotas()
	if err != nil {
		return nil, err
	}

	l := &Limiter{
		quotas: quotas,
		window: quotas[TierAnonymous].Window,
		now:    time.Now,
		done:   make(chan struct{}),
	}
	for i := range l.shards {
		l.shards[i] = &shard{windows: make(map[string]*clientWindow)}
	}

	if cfg.SweepInterval > 0 {
		l.wg.Add(1)
		go l.janitor(cfg.SweepInterval)
	}

	return l, nil
}

func (l *Limiter) shardFor(clientID string) *shard {
	h := fnv.New32a()
	_, _ = h.Write([]byte(clientID))
	return l.shards[h.Sum32()%shardCount]
}

// Allow records the request when admitted and reports the wait until the
// next slot frees when rejected.
func (l *Limiter) Allow(clientID string, tier Tier) (bool, time.Duration) {
	quota, ok := l.quotas[tier]
	if !ok {
		quota = l.quotas[TierAnonymous]
	}

	now := l.now()
	sh := l.shardFor(clientID)

	sh.mu.Lock()
	defer sh.mu.Unlock()

	w := sh.windows[clientID]
	if w == nil {
		w = &clientWindow{}
		sh.windows[clientID] = w
	}

	w.prune(now.Add(-l.window))

	if len(w.stamps) >= quota.Limit {
		retryAfter := w.stamps[0].Add(l.window).Sub(now)
		if retryAfter < 0 {
			retryAfter = 0
		}
		return false, retryAfter
	}

	w.stamps = append(w.stamps, now)
	return true, 0
}

// Sweep prunes every window and drops clients that emptied out. Returns the
// number of client entries removed.
func (l *Limiter) Sweep() int {
	now := l.now()
	cutoff := now.Add(-l.window)
	removed := 0

	for _, sh := range l.shards {
		sh.mu.Lock()
		for id, w := range sh.windows {
			w.prune(cutoff)
			if len(w.stamps) == 0 {
				delete(sh.windows, id)
				removed++
			}
		}
		sh.mu.Unlock()
	}

	return removed
}

func (l *Limiter) janitor(interval time.Duration) {
	defer l.wg.Done()

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			l.Sweep()
		case <-l.done:
			return
		}
	}
}

// Close stops the sweeper. Safe to call more than once.
func (l *Limiter) Close() {
	l.closeOnce.Do(func() {
		close(l.done)
	})
	l.wg.Wait()
}

// Tracked reports how many client windows are currently held, across all
// shards. Intended for posture reporting and tests.
func (l *Limiter) Tracked() int {
	total := 0
	for _, sh := range l.shards {
		sh.mu.Lock()
		total += len(sh.windows)
		sh.mu.Unlock()
	}
	return total
}
