// Package graph persists compliance snapshots to Neo4j. The graph is a
// queryable projection of the reconciliation engine's state, not the source
// of truth: every write is an idempotent MERGE keyed by VIN or document id,
// so replaying a snapshot converges instead of duplicating.
package graph

import (
	"context"
	"errors"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"

	"github.com/clearhaul/fleetcomply/engine/domain"
	"github.com/clearhaul/fleetcomply/pkg/repo"
)

var errNotANode = errors.New("graph: record value is not a node")

// SnapshotStore writes vehicle compliance snapshots to Neo4j.
type SnapshotStore struct {
	driver   neo4j.DriverWithContext
	vehicles *repo.Neo4jRepo[VehicleNode, string]
}

// New creates a SnapshotStore.
func New(driver neo4j.DriverWithContext) *SnapshotStore {
	return &SnapshotStore{
		driver:   driver,
		vehicles: repo.NewNeo4jRepo[VehicleNode, string](driver, "Vehicle", "vin", vehicleNodeToMap, vehicleNodeFromRecord),
	}
}

// GetVehicle returns the stored (:Vehicle) node.
func (s *SnapshotStore) GetVehicle(ctx context.Context, vin string) (VehicleNode, error) {
	return s.vehicles.Get(ctx, vin)
}

// ListVehicles pages through stored vehicle nodes.
func (s *SnapshotStore) ListVehicles(ctx context.Context, opts repo.ListOpts) ([]VehicleNode, error) {
	return s.vehicles.List(ctx, opts)
}

// SaveSnapshot persists one vehicle aggregate: the vehicle node, its
// documents, unresolved and resolved conflicts, and VIN aliases, all in one
// write transaction.
func (s *SnapshotStore) SaveSnapshot(ctx context.Context, v *domain.VehicleRecord) error {
	sess := s.driver.NewSession(ctx, neo4j.SessionConfig{})
	defer sess.Close(ctx)

	_, err := sess.ExecuteWrite(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		if _, err := tx.Run(ctx,
			`MERGE (v:Vehicle {vin: $vin}) SET v += $props`,
			map[string]any{"vin": v.VIN, "props": vehicleNodeToMap(vehicleNode(v))},
		); err != nil {
			return nil, err
		}

		for _, doc := range v.Documents {
			if _, err := tx.Run(ctx,
				`MATCH (v:Vehicle {vin: $vin})
				 MERGE (d:Document {id: $id}) SET d += $props
				 MERGE (v)-[:HAS_DOCUMENT]->(d)`,
				map[string]any{"vin": v.VIN, "id": doc.ID, "props": documentToMap(doc)},
			); err != nil {
				return nil, err
			}
		}

		conflicts := append(append([]*domain.Conflict(nil), v.ActiveConflicts...), v.ResolvedConflicts...)
		for _, c := range conflicts {
			if _, err := tx.Run(ctx,
				`MERGE (c:Conflict {id: $id}) SET c += $props`,
				map[string]any{"id": c.ID, "props": conflictToMap(c)},
			); err != nil {
				return nil, err
			}
			for _, docID := range c.Documents {
				if _, err := tx.Run(ctx,
					`MATCH (c:Conflict {id: $cid}), (d:Document {id: $did})
					 MERGE (c)-[:INVOLVES]->(d)`,
					map[string]any{"cid": c.ID, "did": docID},
				); err != nil {
					return nil, err
				}
			}
		}

		for _, alias := range v.AlternativeVINs {
			if _, err := tx.Run(ctx,
				`MATCH (v:Vehicle {vin: $vin})
				 MERGE (a:VINAlias {vin: $alias})
				 MERGE (a)-[:ALIAS_OF]->(v)`,
				map[string]any{"vin": v.VIN, "alias": alias},
			); err != nil {
				return nil, err
			}
		}
		return nil, nil
	})
	return err
}

// DeleteVehicle removes a vehicle and everything hanging off it.
func (s *SnapshotStore) DeleteVehicle(ctx context.Context, vin string) error {
	sess := s.driver.NewSession(ctx, neo4j.SessionConfig{})
	defer sess.Close(ctx)

	_, err := sess.Run(ctx,
		`MATCH (v:Vehicle {vin: $vin})
		 OPTIONAL MATCH (v)-[:HAS_DOCUMENT]->(d:Document)
		 OPTIONAL MATCH (a:VINAlias)-[:ALIAS_OF]->(v)
		 DETACH DELETE v, d, a`,
		map[string]any{"vin": vin},
	)
	return err
}
