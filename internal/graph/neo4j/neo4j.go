package neo4j

import (
	"context"
	"fmt"

	"github.com/efebarandurmaz/causaldiscover/internal/causal"
	"github.com/efebarandurmaz/causaldiscover/internal/graph"
	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
)

// Neo4jRepository implements graph.Repository using Neo4j. Variables are
// stored as (:Variable) nodes and relationships as [:CAUSES] edges, both
// scoped by a project property.
type Neo4jRepository struct {
	driver neo4j.DriverWithContext
}

// NewNeo4j creates a Neo4j-backed repository.
func NewNeo4j(ctx context.Context, uri, username, password string) (*Neo4jRepository, error) {
	driver, err := neo4j.NewDriverWithContext(uri, neo4j.BasicAuth(username, password, ""))
	if err != nil {
		return nil, fmt.Errorf("neo4j driver: %w", err)
	}
	if err := driver.VerifyConnectivity(ctx); err != nil {
		return nil, fmt.Errorf("neo4j connectivity: %w", err)
	}
	return &Neo4jRepository{driver: driver}, nil
}

func (r *Neo4jRepository) StoreGraph(ctx context.Context, projectID string, g *causal.CausalGraph) error {
	session := r.driver.NewSession(ctx, neo4j.SessionConfig{})
	defer session.Close(ctx)

	_, err := session.ExecuteWrite(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		if _, err := tx.Run(ctx,
			"MATCH (v:Variable {project: $project}) DETACH DELETE v",
			map[string]any{"project": projectID}); err != nil {
			return nil, err
		}
		if _, err := tx.Run(ctx,
			"MERGE (p:Project {id: $project}) SET p.algorithm = $algorithm",
			map[string]any{"project": projectID, "algorithm": string(g.Algorithm)}); err != nil {
			return nil, err
		}
		for _, v := range g.Variables {
			if _, err := tx.Run(ctx,
				"MERGE (v:Variable {project: $project, columnName: $column}) "+
					"SET v.name = $name, v.nature = $nature, v.derivedFrom = $derivedFrom",
				variableParams(projectID, v)); err != nil {
				return nil, err
			}
		}
		for _, rel := range g.Relationships {
			if _, err := tx.Run(ctx,
				"MERGE (a:Variable {project: $project, columnName: $source}) "+
					"MERGE (b:Variable {project: $project, columnName: $target}) "+
					"MERGE (a)-[c:CAUSES {key: $key}]->(b) "+
					"SET c.name = $name, c.directed = $directed, c.weight = $weight, "+
					"c.confidence = $confidence, c.reason = $reason",
				relationshipParams(projectID, rel)); err != nil {
				return nil, err
			}
		}
		return nil, nil
	})
	if err != nil {
		return fmt.Errorf("store graph %s: %w", projectID, err)
	}
	return nil
}

func (r *Neo4jRepository) LoadGraph(ctx context.Context, projectID string) (*causal.CausalGraph, error) {
	session := r.driver.NewSession(ctx, neo4j.SessionConfig{})
	defer session.Close(ctx)

	result, err := session.ExecuteRead(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		g := &causal.CausalGraph{Relationships: []causal.Relationship{}}

		records, err := tx.Run(ctx,
			"OPTIONAL MATCH (p:Project {id: $project}) RETURN p.algorithm AS algorithm",
			map[string]any{"project": projectID})
		if err != nil {
			return nil, err
		}
		if records.Next(ctx) {
			alg, _ := records.Record().Get("algorithm")
			g.Algorithm = causal.Algorithm(stringValue(alg))
		}
		if err := records.Err(); err != nil {
			return nil, err
		}

		records, err = tx.Run(ctx,
			"MATCH (v:Variable {project: $project}) "+
				"RETURN v.columnName AS column, v.name AS name, v.nature AS nature, v.derivedFrom AS derivedFrom "+
				"ORDER BY v.columnName",
			map[string]any{"project": projectID})
		if err != nil {
			return nil, err
		}
		for records.Next(ctx) {
			g.Variables = append(g.Variables, variableFromRecord(records.Record()))
		}
		if err := records.Err(); err != nil {
			return nil, err
		}

		records, err = tx.Run(ctx,
			"MATCH (a:Variable {project: $project})-[c:CAUSES]->(b:Variable {project: $project}) "+
				"RETURN a.columnName AS source, b.columnName AS target, c.key AS key, c.name AS name, "+
				"c.directed AS directed, c.weight AS weight, c.confidence AS confidence, c.reason AS reason "+
				"ORDER BY c.key",
			map[string]any{"project": projectID})
		if err != nil {
			return nil, err
		}
		for records.Next(ctx) {
			g.Relationships = append(g.Relationships, relationshipFromValues(records.Record().AsMap()))
		}
		if err := records.Err(); err != nil {
			return nil, err
		}
		return g, nil
	})
	if err != nil {
		return nil, fmt.Errorf("load graph %s: %w", projectID, err)
	}
	return result.(*causal.CausalGraph), nil
}

func (r *Neo4jRepository) QueryChildren(ctx context.Context, projectID, columnName string) ([]string, error) {
	session := r.driver.NewSession(ctx, neo4j.SessionConfig{})
	defer session.Close(ctx)

	result, err := session.ExecuteRead(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		records, err := tx.Run(ctx,
			"MATCH (:Variable {project: $project, columnName: $column})-[:CAUSES]->(child:Variable) "+
				"RETURN child.columnName AS column ORDER BY column",
			map[string]any{"project": projectID, "column": columnName})
		if err != nil {
			return nil, err
		}
		names := []string{}
		for records.Next(ctx) {
			n, _ := records.Record().Get("column")
			names = appendColumn(names, n)
		}
		if err := records.Err(); err != nil {
			return nil, err
		}
		return names, nil
	})
	if err != nil {
		return nil, fmt.Errorf("query children of %s: %w", columnName, err)
	}
	return result.([]string), nil
}

// Ping checks that the database is reachable.
func (r *Neo4jRepository) Ping(ctx context.Context) error {
	return r.driver.VerifyConnectivity(ctx)
}

func (r *Neo4jRepository) Close(ctx context.Context) error {
	return r.driver.Close(ctx)
}

func variableParams(projectID string, v causal.CausalVariable) map[string]any {
	derived := make([]any, len(v.DerivedFrom))
	for i, d := range v.DerivedFrom {
		derived[i] = d
	}
	return map[string]any{
		"project":     projectID,
		"column":      v.ColumnName,
		"name":        v.Name,
		"nature":      string(v.Nature),
		"derivedFrom": derived,
	}
}

func variableFromRecord(rec *neo4j.Record) causal.CausalVariable {
	values := rec.AsMap()
	v := causal.CausalVariable{
		ColumnName: stringValue(values["column"]),
		Name:       stringValue(values["name"]),
		Nature:     causal.VariableNature(stringValue(values["nature"])),
	}
	if list, ok := values["derivedFrom"].([]any); ok {
		for _, d := range list {
			v.DerivedFrom = append(v.DerivedFrom, stringValue(d))
		}
	}
	return v
}

// relationshipParams flattens a relationship into Cypher parameters. Unknown
// weights and confidences are stored as null.
func relationshipParams(projectID string, rel causal.Relationship) map[string]any {
	params := map[string]any{
		"project":    projectID,
		"source":     rel.Source.ColumnName,
		"target":     rel.Target.ColumnName,
		"key":        rel.Key,
		"name":       rel.Name,
		"directed":   rel.Directed,
		"reason":     string(rel.Reason),
		"weight":     nil,
		"confidence": nil,
	}
	if rel.Weight != nil {
		params["weight"] = *rel.Weight
	}
	if rel.Confidence != nil {
		params["confidence"] = *rel.Confidence
	}
	return params
}

func relationshipFromValues(values map[string]any) causal.Relationship {
	rel := causal.Relationship{
		Source: causal.VariableReference{ColumnName: stringValue(values["source"])},
		Target: causal.VariableReference{ColumnName: stringValue(values["target"])},
		Key:    stringValue(values["key"]),
		Name:   stringValue(values["name"]),
		Reason: causal.ManualRelationshipReason(stringValue(values["reason"])),
	}
	if d, ok := values["directed"].(bool); ok {
		rel.Directed = d
	}
	if w, ok := values["weight"].(float64); ok {
		rel.Weight = causal.Float(w)
	}
	if c, ok := values["confidence"].(float64); ok {
		rel.Confidence = causal.Float(c)
	}
	return rel
}

// appendColumn skips null and non-string column names.
func appendColumn(names []string, v any) []string {
	if s := stringValue(v); s != "" {
		return append(names, s)
	}
	return names
}

func stringValue(v any) string {
	s, _ := v.(string)
	return s
}

var _ graph.Repository = (*Neo4jRepository)(nil)
