package lifecycle

import (
	"context"
	"sort"
	"sync"
	"sync/atomic"
)

// Check reports whether one dependency can serve traffic.
type Check func(ctx context.Context) error

// Lifecycle holds process state shared across handlers: the draining flag
// flipped at shutdown and the dependency checks readiness runs.
type Lifecycle struct {
	draining atomic.Bool

	mu     sync.RWMutex
	checks map[string]Check
}

func (l *Lifecycle) SetDraining(draining bool) {
	if l == nil {
		return
	}
	l.draining.Store(draining)
}

func (l *Lifecycle) IsDraining() bool {
	if l == nil {
		return false
	}
	return l.draining.Load()
}

// AddCheck registers a named readiness check. A later call with the same
// name replaces the earlier one.
func (l *Lifecycle) AddCheck(name string, c Check) {
	if l == nil || c == nil {
		return
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.checks == nil {
		l.checks = make(map[string]Check)
	}
	l.checks[name] = c
}

// Check runs every registered check and returns the failures by name.
func (l *Lifecycle) Check(ctx context.Context) map[string]error {
	if l == nil {
		return nil
	}
	l.mu.RLock()
	names := make([]string, 0, len(l.checks))
	for name := range l.checks {
		names = append(names, name)
	}
	checks := make([]Check, 0, len(names))
	sort.Strings(names)
	for _, name := range names {
		checks = append(checks, l.checks[name])
	}
	l.mu.RUnlock()

	var failed map[string]error
	for i, c := range checks {
		if err := c(ctx); err != nil {
			if failed == nil {
				failed = make(map[string]error)
			}
			failed[names[i]] = err
		}
	}
	return failed
}
