// firewall/engine.go
package firewall

import (
	"sort"
	"sync/atomic"

	"go.uber.org/zap"

	logger "github.com/stronghold-io/bastion/logging"
	"github.com/stronghold-io/bastion/metrics"
	"github.com/stronghold-io/bastion/model"
)

// Snapshot is an immutable, versioned view of the rule set, pre-sorted by
// ascending priority (ties by ascending rule ID, i.e. insertion order).
// Evaluation only ever reads snapshots; mutations publish a new one.
type Snapshot struct {
	Version uint64
	Rules   []model.FirewallRule
}

// Engine evaluates traffic descriptors against the current snapshot.
type Engine struct {
	snap    atomic.Pointer[Snapshot]
	version atomic.Uint64
}

func NewEngine() *Engine {
	e := &Engine{}
	e.snap.Store(&Snapshot{})
	return e
}

// Publish sorts the rules and atomically installs them as the new snapshot.
func (e *Engine) Publish(rules []model.FirewallRule) {
	sorted := make([]model.FirewallRule, len(rules))
	copy(sorted, rules)
	sort.SliceStable(sorted, func(i, j int) bool {
		if sorted[i].Priority != sorted[j].Priority {
			return sorted[i].Priority < sorted[j].Priority
		}
		return sorted[i].ID < sorted[j].ID
	})

	snap := &Snapshot{
		Version: e.version.Add(1),
		Rules:   sorted,
	}
	e.snap.Store(snap)
	logger.Info("Published firewall rule snapshot",
		zap.Uint64("version", snap.Version),
		zap.Int("rules", len(snap.Rules)))
}

// Snapshot returns the current rule snapshot.
func (e *Engine) Snapshot() *Snapshot {
	return e.snap.Load()
}

// Decide evaluates traffic against the current snapshot.
func (e *Engine) Decide(traffic model.TrafficDescriptor) model.RuleAction {
	action := Decide(traffic, e.snap.Load().Rules)
	metrics.IncFirewallVerdict(string(action))
	return action
}

// Decide scans rules in order and returns the first match's action. Rules
// must already be sorted by ascending priority; no matching rule means DENY.
func Decide(traffic model.TrafficDescriptor, rules []model.FirewallRule) model.RuleAction {
	for i := range rules {
		if rules[i].Matches(traffic) {
			logger.Debug("Firewall rule matched",
				zap.String("rule", rules[i].UUID),
				zap.Int("priority", rules[i].Priority),
				zap.String("action", string(rules[i].Action)))
			return rules[i].Action
		}
	}
	return model.RuleActionDeny
}
