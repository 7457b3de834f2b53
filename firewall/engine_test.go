// firewall/engine_test.go
package firewall

import (
	"os"
	"testing"

	"github.com/stretchr/testify/assert"

	logger "github.com/stronghold-io/bastion/logging"
	"github.com/stronghold-io/bastion/model"
)

func TestMain(m *testing.M) {
	logger.InitLogger(os.TempDir())
	os.Exit(m.Run())
}

func rule(id uint, priority int, action model.RuleAction, source, dest string, port int, protocol string) model.FirewallRule {
	return model.FirewallRule{
		ID:          id,
		Source:      source,
		Destination: dest,
		Port:        port,
		Protocol:    protocol,
		Action:      action,
		Priority:    priority,
	}
}

func TestDecideLowestPriorityWins(t *testing.T) {
	engine := NewEngine()
	// Published out of order; all three match the traffic.
	engine.Publish([]model.FirewallRule{
		rule(1, 100, model.RuleActionDeny, "*", "*", 0, "*"),
		rule(2, 50, model.RuleActionAllow, "*", "*", 0, "*"),
		rule(3, 75, model.RuleActionDeny, "*", "*", 0, "*"),
	})

	action := engine.Decide(model.TrafficDescriptor{
		Source:      "10.0.0.1",
		Destination: "10.0.0.2",
		Port:        443,
		Protocol:    "tcp",
	})
	assert.Equal(t, model.RuleActionAllow, action)
}

func TestDecideDefaultDeny(t *testing.T) {
	engine := NewEngine()

	traffic := model.TrafficDescriptor{Source: "10.0.0.1", Destination: "10.0.0.2", Port: 22, Protocol: "tcp"}

	// Empty rule set.
	assert.Equal(t, model.RuleActionDeny, engine.Decide(traffic))

	// Non-empty rule set, nothing matches.
	engine.Publish([]model.FirewallRule{
		rule(1, 10, model.RuleActionAllow, "192.168.1.1", "*", 0, "*"),
	})
	assert.Equal(t, model.RuleActionDeny, engine.Decide(traffic))
}

func TestDecideFieldMatching(t *testing.T) {
	rules := []model.FirewallRule{
		rule(1, 10, model.RuleActionAllow, "10.0.0.1", "10.0.0.2", 443, "tcp"),
	}

	cases := []struct {
		name    string
		traffic model.TrafficDescriptor
		want    model.RuleAction
	}{
		{"exact match", model.TrafficDescriptor{Source: "10.0.0.1", Destination: "10.0.0.2", Port: 443, Protocol: "tcp"}, model.RuleActionAllow},
		{"wrong source", model.TrafficDescriptor{Source: "10.0.0.9", Destination: "10.0.0.2", Port: 443, Protocol: "tcp"}, model.RuleActionDeny},
		{"wrong destination", model.TrafficDescriptor{Source: "10.0.0.1", Destination: "10.0.0.9", Port: 443, Protocol: "tcp"}, model.RuleActionDeny},
		{"wrong port", model.TrafficDescriptor{Source: "10.0.0.1", Destination: "10.0.0.2", Port: 80, Protocol: "tcp"}, model.RuleActionDeny},
		{"wrong protocol", model.TrafficDescriptor{Source: "10.0.0.1", Destination: "10.0.0.2", Port: 443, Protocol: "udp"}, model.RuleActionDeny},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, Decide(tc.traffic, rules))
		})
	}
}

func TestDecideWildcards(t *testing.T) {
	rules := []model.FirewallRule{
		rule(1, 10, model.RuleActionAllow, "*", "*", 0, "*"),
	}

	assert.Equal(t, model.RuleActionAllow, Decide(model.TrafficDescriptor{
		Source:      "anything",
		Destination: "anywhere",
		Port:        12345,
		Protocol:    "icmp",
	}, rules))
}

func TestDecideEqualPriorityInsertionOrder(t *testing.T) {
	engine := NewEngine()
	// Same priority: the earlier-created rule (lower ID) must win, even when
	// published in reverse order.
	engine.Publish([]model.FirewallRule{
		rule(2, 10, model.RuleActionDeny, "*", "*", 0, "*"),
		rule(1, 10, model.RuleActionAllow, "*", "*", 0, "*"),
	})

	action := engine.Decide(model.TrafficDescriptor{Source: "a", Destination: "b", Port: 1, Protocol: "tcp"})
	assert.Equal(t, model.RuleActionAllow, action)
}

func TestPublishSortsAndVersions(t *testing.T) {
	engine := NewEngine()
	engine.Publish([]model.FirewallRule{
		rule(1, 30, model.RuleActionDeny, "*", "*", 0, "*"),
		rule(2, 10, model.RuleActionAllow, "*", "*", 0, "*"),
		rule(3, 20, model.RuleActionDeny, "*", "*", 0, "*"),
	})

	snap := engine.Snapshot()
	assert.Equal(t, uint64(1), snap.Version)
	assert.Equal(t, []int{10, 20, 30}, []int{snap.Rules[0].Priority, snap.Rules[1].Priority, snap.Rules[2].Priority})

	engine.Publish(nil)
	snap = engine.Snapshot()
	assert.Equal(t, uint64(2), snap.Version)
	assert.Empty(t, snap.Rules)
}
