// evaluator/evaluator.go
package evaluator

import "context"

// Result is the evaluator's verdict on a single permission check.
type Result struct {
	HasPermission bool   `json:"has_permission"`
	Reason        string `json:"reason,omitempty"`
}

// Evaluator answers whether a principal may perform an action on a resource
// type. The decision engine treats the answer as authoritative and never
// interprets how it was computed; role hierarchies, attribute rules and the
// like are the implementation's concern.
type Evaluator interface {
	HasPermissionByAction(ctx context.Context, userID, resourceType, action string) (Result, error)
}
