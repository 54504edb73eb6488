package fallback

import (
	"context"
	"sort"
	"sync"

	"github.com/frankfrisby/backbone/pkg/errors"
	"github.com/frankfrisby/backbone/pkg/events"
	"github.com/frankfrisby/backbone/pkg/logging"
	"github.com/frankfrisby/backbone/pkg/metrics"
)

// failureThreshold is the accumulated failure count that excludes a
// provider until Reset
const failureThreshold = 3

// ModelDescriptor is a static, priority-ranked definition of an AI
// provider option. Lower Priority means more preferred.
type ModelDescriptor struct {
	ID       string   `json:"id"`
	Name     string   `json:"name"`
	Priority int      `json:"priority"`
	AuthEnv  string   `json:"auth_env"`
	Models   []string `json:"models"`
}

// ConfiguredFunc resolves whether a provider has credentials present.
// The manager never stores secrets itself.
type ConfiguredFunc func(ModelDescriptor) bool

// Manager maintains a priority-ordered list of providers and a runtime
// overlay of failed ones, automatically demoting a failing provider and
// promoting the next available one.
type Manager struct {
	descriptors []ModelDescriptor
	configured  ConfiguredFunc

	mutex    sync.Mutex
	failures map[string]int
	failed   map[string]bool
	current  string

	bus     *events.Bus
	metrics *metrics.Metrics
	logger  *logging.Logger
}

// NewManager creates a fallback manager over the given descriptors
func NewManager(descriptors []ModelDescriptor, configured ConfiguredFunc, bus *events.Bus, m *metrics.Metrics, logger *logging.Logger) *Manager {
	if logger == nil {
		logger = logging.GetLogger()
	}
	if configured == nil {
		configured = func(ModelDescriptor) bool { return true }
	}

	sorted := make([]ModelDescriptor, len(descriptors))
	copy(sorted, descriptors)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Priority < sorted[j].Priority
	})

	return &Manager{
		descriptors: sorted,
		configured:  configured,
		failures:    make(map[string]int),
		failed:      make(map[string]bool),
		bus:         bus,
		metrics:     m,
		logger:      logger,
	}
}

// Current returns the selected provider: the pinned selection while it is
// still configured and not failed, otherwise the highest-priority
// available, non-failed provider.
func (mgr *Manager) Current() (ModelDescriptor, bool) {
	mgr.mutex.Lock()
	defer mgr.mutex.Unlock()
	return mgr.currentLocked()
}

func (mgr *Manager) currentLocked() (ModelDescriptor, bool) {
	if mgr.current != "" {
		if desc, ok := mgr.lookup(mgr.current); ok && !mgr.failed[desc.ID] && mgr.configured(desc) {
			return desc, true
		}
	}

	// No valid pin: fall back to priority order without pinning, so a
	// higher priority provider that becomes available is picked up
	mgr.current = ""
	for _, desc := range mgr.descriptors {
		if !mgr.failed[desc.ID] && mgr.configured(desc) {
			return desc, true
		}
	}
	return ModelDescriptor{}, false
}

func (mgr *Manager) lookup(id string) (ModelDescriptor, bool) {
	for _, desc := range mgr.descriptors {
		if desc.ID == id {
			return desc, true
		}
	}
	return ModelDescriptor{}, false
}

// ReportFailure increments the provider's failure counter. At the
// threshold the provider joins the failed set and the manager switches to
// the next available provider.
func (mgr *Manager) ReportFailure(ctx context.Context, id string, cause error) {
	mgr.mutex.Lock()

	if _, ok := mgr.lookup(id); !ok {
		mgr.mutex.Unlock()
		mgr.logger.Warn("Failure reported for unknown provider", "provider", id)
		return
	}

	mgr.failures[id]++
	count := mgr.failures[id]

	if mgr.metrics != nil && mgr.metrics.Enabled() {
		mgr.metrics.ModelFailuresTotal.WithLabelValues(id).Inc()
	}

	if count < failureThreshold {
		mgr.mutex.Unlock()

		mgr.logger.Warn("Provider error reported",
			"provider", id,
			"failures", count,
			"threshold", failureThreshold,
		)
		if mgr.bus != nil {
			fields := map[string]interface{}{"failures": count}
			if cause != nil {
				fields["error"] = cause.Error()
			}
			mgr.bus.Publish(ctx, events.Event{
				Type:   events.TypeModelError,
				Source: id,
				Fields: fields,
			})
		}
		return
	}

	mgr.failed[id] = true
	if mgr.current == id {
		mgr.current = ""
	}
	next, ok := mgr.currentLocked()
	mgr.mutex.Unlock()

	if !ok {
		mgr.logger.Error("All providers failed or unconfigured", "last", id)
		if mgr.bus != nil {
			mgr.bus.Publish(ctx, events.Event{
				Type:   events.TypeAllModelsFailed,
				Source: id,
			})
		}
		return
	}

	mgr.logger.Warn("Provider demoted, switching",
		"from", id,
		"to", next.ID,
		"failures", count,
	)
	if mgr.metrics != nil && mgr.metrics.Enabled() {
		mgr.metrics.ModelSwitchesTotal.WithLabelValues(id, next.ID).Inc()
	}
	if mgr.bus != nil {
		mgr.bus.Publish(ctx, events.Event{
			Type:   events.TypeModelSwitched,
			Source: id,
			Fields: map[string]interface{}{
				"from": id,
				"to":   next.ID,
			},
		})
	}
}

// ReportSuccess clears the provider's failure state and pins it as current
func (mgr *Manager) ReportSuccess(id string) {
	mgr.mutex.Lock()
	defer mgr.mutex.Unlock()

	if _, ok := mgr.lookup(id); !ok {
		return
	}

	delete(mgr.failures, id)
	delete(mgr.failed, id)
	mgr.current = id
}

// SwitchTo manually overrides the selection, clearing the provider's
// failed flag
func (mgr *Manager) SwitchTo(id string) error {
	mgr.mutex.Lock()
	defer mgr.mutex.Unlock()

	desc, ok := mgr.lookup(id)
	if !ok {
		return errors.NewNotFoundError("provider " + id)
	}
	if !mgr.configured(desc) {
		return errors.NewValidationError("provider " + id + " is not configured")
	}

	delete(mgr.failed, id)
	delete(mgr.failures, id)
	mgr.current = id

	mgr.logger.Info("Provider manually selected", "provider", id)
	return nil
}

// Reset clears all failure state
func (mgr *Manager) Reset() {
	mgr.mutex.Lock()
	defer mgr.mutex.Unlock()

	mgr.failures = make(map[string]int)
	mgr.failed = make(map[string]bool)
	mgr.current = ""
}

// AvailableModels returns the configured, non-failed providers in
// priority order
func (mgr *Manager) AvailableModels() []ModelDescriptor {
	mgr.mutex.Lock()
	defer mgr.mutex.Unlock()

	var available []ModelDescriptor
	for _, desc := range mgr.descriptors {
		if !mgr.failed[desc.ID] && mgr.configured(desc) {
			available = append(available, desc)
		}
	}
	return available
}

// FailureCount returns the accumulated failure count for a provider
func (mgr *Manager) FailureCount(id string) int {
	mgr.mutex.Lock()
	defer mgr.mutex.Unlock()
	return mgr.failures[id]
}

// EnvConfigured returns a ConfiguredFunc that checks the descriptor's
// credential environment variable
func EnvConfigured(getenv func(string) string) ConfiguredFunc {
	return func(desc ModelDescriptor) bool {
		if desc.AuthEnv == "" {
			return true
		}
		return getenv(desc.AuthEnv) != ""
	}
}
