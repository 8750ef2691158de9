package cluster

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
)

// CachedDirectory polls a slow Directory on a ticker and answers from the
// last complete snapshot. Reads fail once the snapshot is older than maxAge,
// so a caller never mistakes an unreachable directory for an unchanged one.
type CachedDirectory struct {
	source   Directory
	interval time.Duration
	maxAge   time.Duration

	mu        sync.RWMutex
	states    map[string]NodeState
	fetchedAt time.Time
	lastErr   error

	closer chan struct{}
	once   sync.Once
	now    func() time.Time
}

// NewCachedDirectory fetches once synchronously, then every interval until Close.
func NewCachedDirectory(source Directory, interval, maxAge time.Duration) *CachedDirectory {
	c := &CachedDirectory{
		source:   source,
		interval: interval,
		maxAge:   maxAge,
		closer:   make(chan struct{}),
		now:      time.Now,
	}
	if err := c.Refresh(context.Background()); err != nil {
		log.WithFields(log.Fields{"err": err}).Warn("initial node directory fetch failed")
	}
	go c.loop()
	return c
}

func (c *CachedDirectory) loop() {
	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			ctx, cancel := context.WithTimeout(context.Background(), c.interval)
			if err := c.Refresh(ctx); err != nil {
				log.WithFields(log.Fields{"err": err}).Warn("node directory fetch failed")
			}
			cancel()
		case <-c.closer:
			return
		}
	}
}

// Refresh replaces the snapshot with a fresh read of the source.
func (c *CachedDirectory) Refresh(ctx context.Context) error {
	states, err := FetchAll(ctx, c.source)
	c.mu.Lock()
	defer c.mu.Unlock()
	c.lastErr = err
	if err != nil {
		return err
	}
	c.states = states
	c.fetchedAt = c.now()
	return nil
}

func (c *CachedDirectory) snapshot() (map[string]NodeState, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.fetchedAt.IsZero() {
		if c.lastErr != nil {
			return nil, errors.Wrap(c.lastErr, "node directory never fetched")
		}
		return nil, errors.New("node directory never fetched")
	}
	if age := c.now().Sub(c.fetchedAt); age > c.maxAge {
		return nil, errors.Errorf("node directory snapshot is %s old (last error: %v)", age, c.lastErr)
	}
	return c.states, nil
}

func (c *CachedDirectory) ListNodes(ctx context.Context) ([]string, error) {
	states, err := c.snapshot()
	if err != nil {
		return nil, err
	}
	names := make([]string, 0, len(states))
	for name := range states {
		names = append(names, name)
	}
	sort.Strings(names)
	return names, nil
}

func (c *CachedDirectory) GetNodeState(ctx context.Context, name string) (NodeState, error) {
	states, err := c.snapshot()
	if err != nil {
		return NodeState{}, err
	}
	st, ok := states[name]
	if !ok {
		return NodeState{}, errors.Errorf("node %s is not in the directory", name)
	}
	return st, nil
}

// Close stops polling. Reads keep answering until the snapshot goes stale.
func (c *CachedDirectory) Close() {
	c.once.Do(func() { close(c.closer) })
}
