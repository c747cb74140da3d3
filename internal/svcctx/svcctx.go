// Package svcctx funnels the reconciliation core's process-wide mutable
// state — the background-push kill switch and the referential cache —
// through a single service context with explicit init/teardown, instead of
// package-level singletons.
package svcctx

import (
	"context"
	"os"
	"strings"
	"sync"

	"github.com/ambre-sync/reconcile-core/internal/model"
)

// ReferentialLoader is the narrow contract the core consumes from the
// external referential store: the country list and the rule table; it
// carries no user fields. The CLI's default implementation reads the
// country list from its JSON parameter file and returns no rules; an
// embedding application may back it with its own store.
type ReferentialLoader interface {
	LoadCountries(ctx context.Context) ([]string, error)
	LoadTruthRules(ctx context.Context) ([]model.Entity, error)
}

// Context bundles the handful of genuinely process-wide pieces of state
// the push/pull engines and rule engine need, each with read-only access
// after initialization. This is the "single legitimate global" the design
// calls for: embedders construct exactly one Context and pass it
// explicitly to every operation.
type Context struct {
	loader ReferentialLoader

	pushMu             sync.RWMutex
	allowBackgroundPush bool

	cacheOnce  sync.Once
	cacheMu    sync.RWMutex
	countries  []string
	truthRules []model.Entity
	cacheErr   error
}

// New constructs a Context. allowBackgroundPush is the initial value of
// the kill switch, before any environment override is applied.
func New(loader ReferentialLoader, allowBackgroundPush bool) *Context {
	return &Context{loader: loader, allowBackgroundPush: allowBackgroundPush}
}

// AllowBackgroundPushes reports whether scheduled/background pushes may
// run. A RECONCILE_DISABLE_BACKGROUND_PUSH environment variable set to a
// boolean (1/true/on/yes disables, 0/false/off/no enables) always wins over
// the in-process value, mirroring the teacher's
// TD_DISABLE_EXPERIMENTAL kill-switch precedence.
func (c *Context) AllowBackgroundPushes() bool {
	if disabled, ok := parseBoolEnv("RECONCILE_DISABLE_BACKGROUND_PUSH"); ok {
		return !disabled
	}
	c.pushMu.RLock()
	defer c.pushMu.RUnlock()
	return c.allowBackgroundPush
}

// SetAllowBackgroundPushes updates the in-process kill switch. Ignored
// while the environment override is active.
func (c *Context) SetAllowBackgroundPushes(allow bool) {
	c.pushMu.Lock()
	defer c.pushMu.Unlock()
	c.allowBackgroundPush = allow
}

// Countries returns the cached country list, loading it on first access
// (double-checked init) and caching it read-only thereafter until Refresh
// is called.
func (c *Context) Countries(ctx context.Context) ([]string, error) {
	if err := c.ensureCache(ctx); err != nil {
		return nil, err
	}
	c.cacheMu.RLock()
	defer c.cacheMu.RUnlock()
	out := make([]string, len(c.countries))
	copy(out, c.countries)
	return out, nil
}

// TruthRules returns the cached rule table, loading it on first access.
func (c *Context) TruthRules(ctx context.Context) ([]model.Entity, error) {
	if err := c.ensureCache(ctx); err != nil {
		return nil, err
	}
	c.cacheMu.RLock()
	defer c.cacheMu.RUnlock()
	out := make([]model.Entity, len(c.truthRules))
	copy(out, c.truthRules)
	return out, nil
}

func (c *Context) ensureCache(ctx context.Context) error {
	c.cacheOnce.Do(func() {
		countries, err := c.loader.LoadCountries(ctx)
		if err != nil {
			c.cacheErr = err
			return
		}
		rules, err := c.loader.LoadTruthRules(ctx)
		if err != nil {
			c.cacheErr = err
			return
		}
		c.cacheMu.Lock()
		c.countries = countries
		c.truthRules = rules
		c.cacheMu.Unlock()
	})
	return c.cacheErr
}

// Refresh forces the referential cache to reload on next access. Used
// after an administrator edits the rule table, per the rule engine's
// 2-minute cache TTL / explicit-invalidation contract.
func (c *Context) Refresh() {
	c.cacheOnce = sync.Once{}
	c.cacheMu.Lock()
	c.countries = nil
	c.truthRules = nil
	c.cacheErr = nil
	c.cacheMu.Unlock()
}

func parseBoolEnv(key string) (bool, bool) {
	v := strings.TrimSpace(strings.ToLower(os.Getenv(key)))
	switch v {
	case "1", "true", "on", "yes":
		return true, true
	case "0", "false", "off", "no":
		return false, true
	default:
		return false, false
	}
}
