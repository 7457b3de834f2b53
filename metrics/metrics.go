package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	decisionsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "bastion_decisions_total",
		Help: "Total number of access decisions, by verdict",
	}, []string{"verdict"})
	decisionCacheHitsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "bastion_decision_cache_hits_total",
		Help: "Total number of decisions served from the cache",
	})
	decisionCacheMissesTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "bastion_decision_cache_misses_total",
		Help: "Total number of decisions that required evaluation",
	})
	firewallVerdictsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "bastion_firewall_verdicts_total",
		Help: "Total number of firewall verdicts, by action",
	}, []string{"action"})
	sessionsRevokedTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "bastion_sessions_revoked_total",
		Help: "Total number of sessions revoked by compromise cascades",
	})
	keyRotationsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "bastion_key_rotations_total",
		Help: "Total number of encryption key rotations",
	})
)

// Register registers Prometheus collectors. Call once at startup.
func Register(registry *prometheus.Registry) {
	registry.MustRegister(
		decisionsTotal,
		decisionCacheHitsTotal,
		decisionCacheMissesTotal,
		firewallVerdictsTotal,
		sessionsRevokedTotal,
		keyRotationsTotal,
	)
}

// IncDecision increments the decision counter for the given verdict.
func IncDecision(allowed bool) {
	if allowed {
		decisionsTotal.WithLabelValues("allow").Inc()
	} else {
		decisionsTotal.WithLabelValues("deny").Inc()
	}
}

// IncCacheHit increments the cache hit counter.
func IncCacheHit() { decisionCacheHitsTotal.Inc() }

// IncCacheMiss increments the cache miss counter.
func IncCacheMiss() { decisionCacheMissesTotal.Inc() }

// IncFirewallVerdict increments the firewall verdict counter.
func IncFirewallVerdict(action string) { firewallVerdictsTotal.WithLabelValues(action).Inc() }

// AddSessionsRevoked records sessions revoked by a compromise cascade.
func AddSessionsRevoked(n int) { sessionsRevokedTotal.Add(float64(n)) }

// IncKeyRotation increments the key rotation counter.
func IncKeyRotation() { keyRotationsTotal.Inc() }
