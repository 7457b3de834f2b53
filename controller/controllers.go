// controller/controllers.go
package controller

import (
	"github.com/stronghold-io/bastion/decision"
	"github.com/stronghold-io/bastion/devicetrust"
	"github.com/stronghold-io/bastion/firewall"
	"github.com/stronghold-io/bastion/keymanager"
)

type Controllers struct {
	Access   *AccessController
	Firewall *FirewallController
	Device   *DeviceController
	Key      *KeyController
}

func InitializeControllers(
	engine *decision.Engine,
	fwEngine *firewall.Engine,
	fwStore *firewall.Store,
	devices *devicetrust.Manager,
	keys *keymanager.Manager,
) *Controllers {
	return &Controllers{
		Access:   NewAccessController(engine),
		Firewall: NewFirewallController(fwEngine, fwStore),
		Device:   NewDeviceController(devices),
		Key:      NewKeyController(keys),
	}
}
