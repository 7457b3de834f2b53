// evaluator/neo4j_evaluator.go
package evaluator

import (
	"context"
	"fmt"
	"time"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
	"go.uber.org/zap"

	logger "github.com/stronghold-io/bastion/logging"
)

// Neo4jEvaluator resolves permissions against the platform's role graph:
// (User)-[:HAS_ROLE]->(Role)-[:HAS_PERMISSION]->(Permission).
type Neo4jEvaluator struct {
	Driver neo4j.Driver
}

var _ Evaluator = (*Neo4jEvaluator)(nil)

func NewNeo4jEvaluator(driver neo4j.Driver) *Neo4jEvaluator {
	return &Neo4jEvaluator{Driver: driver}
}

func (e *Neo4jEvaluator) HasPermissionByAction(ctx context.Context, userID, resourceType, action string) (Result, error) {
	start := time.Now()
	session := e.Driver.NewSession(neo4j.SessionConfig{AccessMode: neo4j.AccessModeRead})
	defer session.Close()

	result, err := session.ReadTransaction(func(transaction neo4j.Transaction) (interface{}, error) {
		query := `
        MATCH (u:User {id: $userID})-[:HAS_ROLE]->(r:Role)-[:HAS_PERMISSION]->(p:Permission)
        WHERE p.resource_type = $resourceType AND p.action = $action
        RETURN r.name AS role LIMIT 1
        `
		params := map[string]interface{}{
			"userID":       userID,
			"resourceType": resourceType,
			"action":       action,
		}

		records, err := transaction.Run(query, params)
		if err != nil {
			return nil, err
		}
		if records.Next() {
			return records.Record().Values[0], nil
		}
		return nil, nil
	})

	duration := time.Since(start)
	if err != nil {
		logger.Error("Permission lookup failed",
			zap.Error(err),
			zap.String("userID", userID),
			zap.String("resourceType", resourceType),
			zap.String("action", action),
			zap.Duration("duration", duration))
		return Result{}, fmt.Errorf("permission lookup: %w", err)
	}

	if result == nil {
		return Result{
			HasPermission: false,
			Reason:        fmt.Sprintf("no role grants %s on %s", action, resourceType),
		}, nil
	}

	role, _ := result.(string)
	logger.Debug("Permission granted by role",
		zap.String("userID", userID),
		zap.String("role", role),
		zap.Duration("duration", duration))
	return Result{
		HasPermission: true,
		Reason:        fmt.Sprintf("granted by role %s", role),
	}, nil
}
