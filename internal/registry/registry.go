// Package registry manages module lifecycle for the LabGraph server:
// registration, dependency ordering, initialization, event wiring and
// shutdown.
package registry

import (
	"context"
	"fmt"
	"slices"
	"sync"

	"github.com/LabGraphTeam/labgraph/pkg/plugin"
	"go.uber.org/zap"
)

// Registry manages the lifecycle of all registered plugins.
type Registry struct {
	mu       sync.RWMutex
	plugins  map[string]plugin.Plugin
	infos    map[string]plugin.PluginInfo
	order    []string // topological order after Validate
	disabled map[string]bool
	logger   *zap.Logger

	subMu  sync.Mutex
	unsubs []func()
}

// New creates an empty registry.
func New(logger *zap.Logger) *Registry {
	return &Registry{
		plugins:  make(map[string]plugin.Plugin),
		infos:    make(map[string]plugin.PluginInfo),
		disabled: make(map[string]bool),
		logger:   logger,
	}
}

// Register adds a plugin. Must be called before Validate.
func (r *Registry) Register(p plugin.Plugin) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	info := p.Info()
	name := info.Name
	if name == "" {
		return fmt.Errorf("plugin has empty name")
	}
	if _, exists := r.plugins[name]; exists {
		return fmt.Errorf("plugin %q already registered", name)
	}

	r.plugins[name] = p
	r.infos[name] = info
	r.logger.Info("plugin registered",
		zap.String("name", name),
		zap.String("version", info.Version),
		zap.Int("api_version", info.APIVersion),
	)
	return nil
}

// Validate checks API versions and dependencies, disables optional plugins
// that cannot run, and computes the start order.
func (r *Registry) Validate() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for name, info := range r.infos {
		if err := r.checkAPIVersion(name, info.APIVersion); err != nil {
			if info.Required {
				return err
			}
			r.logger.Warn("disabling plugin due to API version incompatibility",
				zap.String("name", name), zap.Error(err))
			r.disabled[name] = true
		}
	}

	for name, info := range r.infos {
		if r.disabled[name] {
			continue
		}
		for _, dep := range info.Dependencies {
			if _, ok := r.plugins[dep]; ok {
				continue
			}
			if info.Required {
				return fmt.Errorf("plugin %q depends on %q which is not registered", name, dep)
			}
			r.logger.Warn("disabling plugin due to missing dependency",
				zap.String("name", name), zap.String("missing_dep", dep))
			r.disabled[name] = true
			break
		}
	}

	// Propagate until no dependent of a disabled plugin is left enabled.
	for changed := true; changed; {
		changed = false
		for name, info := range r.infos {
			if r.disabled[name] {
				continue
			}
			for _, dep := range info.Dependencies {
				if !r.disabled[dep] {
					continue
				}
				if info.Required {
					return fmt.Errorf("required plugin %q cannot start: dependency %q is disabled", name, dep)
				}
				r.logger.Warn("cascade disabling plugin",
					zap.String("name", name), zap.String("disabled_dep", dep))
				r.disabled[name] = true
				changed = true
				break
			}
		}
	}

	order, err := r.topologicalSort()
	if err != nil {
		return err
	}
	r.order = order

	r.logger.Info("plugin dependency resolution complete",
		zap.Strings("start_order", r.order),
		zap.Int("active", len(r.order)),
		zap.Int("disabled", len(r.disabled)),
	)
	return nil
}

// InitAll initializes active plugins in dependency order, validates their
// config and subscribes their declared event handlers on deps.Bus.
func (r *Registry) InitAll(ctx context.Context, depsFn func(name string) plugin.Dependencies) error {
	for _, name := range r.activeOrder() {
		p, info := r.lookup(name)

		r.logger.Info("initializing plugin", zap.String("name", name))
		deps := depsFn(name)
		if deps.Plugins == nil {
			deps.Plugins = r
		}

		err := safeInvoke(name, "Init", func() error { return p.Init(ctx, deps) })
		if err == nil {
			if v, ok := p.(plugin.Validator); ok {
				err = safeInvoke(name, "ValidateConfig", v.ValidateConfig)
			}
		}
		if err != nil {
			if info.Required {
				return fmt.Errorf("required plugin %q failed to initialize: %w", name, err)
			}
			r.logger.Error("optional plugin failed to initialize, disabling",
				zap.String("name", name), zap.Error(err))
			r.disable(name)
			continue
		}

		if es, ok := p.(plugin.EventSubscriber); ok && deps.Bus != nil {
			for _, sub := range es.Subscriptions() {
				unsub := deps.Bus.Subscribe(sub.Topic, sub.Handler)
				r.subMu.Lock()
				r.unsubs = append(r.unsubs, unsub)
				r.subMu.Unlock()
				r.logger.Debug("plugin subscribed",
					zap.String("name", name), zap.String("topic", sub.Topic))
			}
		}
	}
	return nil
}

// StartAll starts initialized plugins in dependency order.
func (r *Registry) StartAll(ctx context.Context) error {
	for _, name := range r.activeOrder() {
		p, info := r.lookup(name)
		r.logger.Info("starting plugin", zap.String("name", name))
		if err := safeInvoke(name, "Start", func() error { return p.Start(ctx) }); err != nil {
			if info.Required {
				return fmt.Errorf("required plugin %q failed to start: %w", name, err)
			}
			r.logger.Error("optional plugin failed to start, disabling",
				zap.String("name", name), zap.Error(err))
			r.disable(name)
		}
	}
	return nil
}

// StopAll removes event subscriptions and stops active plugins in reverse
// dependency order. Every Stop receives ctx and is expected to return once
// it expires; a failing or panicking plugin does not block the others.
func (r *Registry) StopAll(ctx context.Context) {
	r.subMu.Lock()
	for _, unsub := range r.unsubs {
		unsub()
	}
	r.unsubs = nil
	r.subMu.Unlock()

	order := r.activeOrder()
	for i := len(order) - 1; i >= 0; i-- {
		name := order[i]
		p, _ := r.lookup(name)
		r.logger.Info("stopping plugin", zap.String("name", name))

		if err := safeInvoke(name, "Stop", func() error { return p.Stop(ctx) }); err != nil {
			r.logger.Error("failed to stop plugin", zap.String("name", name), zap.Error(err))
		}
	}
}

// Get returns an active plugin by name.
func (r *Registry) Get(name string) (plugin.Plugin, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.plugins[name]
	if ok && r.disabled[name] {
		return nil, false
	}
	return p, ok
}

// All returns active plugins in dependency order.
func (r *Registry) All() []plugin.Plugin {
	r.mu.RLock()
	defer r.mu.RUnlock()

	result := make([]plugin.Plugin, 0, len(r.order))
	for _, name := range r.order {
		if !r.disabled[name] {
			result = append(result, r.plugins[name])
		}
	}
	return result
}

// AllRoutes collects routes from active HTTPProvider plugins, keyed by plugin name.
func (r *Registry) AllRoutes() map[string][]plugin.Route {
	r.mu.RLock()
	defer r.mu.RUnlock()

	routes := make(map[string][]plugin.Route)
	for _, name := range r.order {
		if r.disabled[name] {
			continue
		}
		if hp, ok := r.plugins[name].(plugin.HTTPProvider); ok {
			if pr := hp.Routes(); len(pr) > 0 {
				routes[name] = pr
			}
		}
	}
	return routes
}

// HealthAll asks every active HealthChecker for its status. Plugins without
// a health check report healthy.
func (r *Registry) HealthAll(ctx context.Context) map[string]plugin.HealthStatus {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make(map[string]plugin.HealthStatus, len(r.order))
	for _, name := range r.order {
		if r.disabled[name] {
			out[name] = plugin.HealthStatus{Status: "unhealthy", Message: "disabled"}
			continue
		}
		if hc, ok := r.plugins[name].(plugin.HealthChecker); ok {
			out[name] = hc.Health(ctx)
			continue
		}
		out[name] = plugin.HealthStatus{Status: "healthy"}
	}
	return out
}

// Resolve implements plugin.PluginResolver.
func (r *Registry) Resolve(name string) (plugin.Plugin, bool) {
	return r.Get(name)
}

// ResolveByRole returns active plugins that declare role.
func (r *Registry) ResolveByRole(role string) []plugin.Plugin {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var result []plugin.Plugin
	for _, name := range r.order {
		if !r.disabled[name] && slices.Contains(r.infos[name].Roles, role) {
			result = append(result, r.plugins[name])
		}
	}
	return result
}

// IsDisabled reports whether a plugin has been disabled.
func (r *Registry) IsDisabled(name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.disabled[name]
}

// activeOrder snapshots the enabled plugins in start order. Lifecycle calls
// run without the lock so plugins may resolve each other during Init.
func (r *Registry) activeOrder() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]string, 0, len(r.order))
	for _, name := range r.order {
		if !r.disabled[name] {
			out = append(out, name)
		}
	}
	return out
}

func (r *Registry) lookup(name string) (plugin.Plugin, plugin.PluginInfo) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.plugins[name], r.infos[name]
}

func (r *Registry) disable(name string) {
	r.mu.Lock()
	r.disabled[name] = true
	r.mu.Unlock()
}

func safeInvoke(name, stage string, fn func() error) (err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("plugin %q panicked during %s: %v", name, stage, rec)
		}
	}()
	return fn()
}

func (r *Registry) checkAPIVersion(name string, apiVersion int) error {
	if apiVersion < plugin.APIVersionMin {
		return fmt.Errorf("plugin %q targets Plugin API v%d, but this server requires v%d or newer (current: v%d)",
			name, apiVersion, plugin.APIVersionMin, plugin.APIVersionCurrent)
	}
	if apiVersion > plugin.APIVersionCurrent {
		return fmt.Errorf("plugin %q targets Plugin API v%d, but this server only supports up to v%d",
			name, apiVersion, plugin.APIVersionCurrent)
	}
	return nil
}

// topologicalSort orders active plugins with Kahn's algorithm. Ties are
// broken by name so the start order is stable across runs.
func (r *Registry) topologicalSort() ([]string, error) {
	active := make(map[string]bool)
	for name := range r.plugins {
		if !r.disabled[name] {
			active[name] = true
		}
	}

	inDegree := make(map[string]int, len(active))
	dependents := make(map[string][]string)
	for name := range active {
		inDegree[name] = 0
	}
	for name := range active {
		for _, dep := range r.infos[name].Dependencies {
			if active[dep] {
				inDegree[name]++
				dependents[dep] = append(dependents[dep], name)
			}
		}
	}

	var queue []string
	for name, degree := range inDegree {
		if degree == 0 {
			queue = append(queue, name)
		}
	}
	slices.Sort(queue)

	var order []string
	for len(queue) > 0 {
		name := queue[0]
		queue = queue[1:]
		order = append(order, name)

		next := dependents[name]
		slices.Sort(next)
		for _, dependent := range next {
			inDegree[dependent]--
			if inDegree[dependent] == 0 {
				queue = append(queue, dependent)
			}
		}
	}

	if len(order) != len(active) {
		var cycled []string
		for name := range active {
			if inDegree[name] > 0 {
				cycled = append(cycled, name)
			}
		}
		slices.Sort(cycled)
		return nil, fmt.Errorf("dependency cycle detected among plugins: %v", cycled)
	}
	return order, nil
}
