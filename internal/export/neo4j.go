// Package export loads cilscope graphs into a Neo4j database.
package export

import (
	"context"
	"fmt"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
	"github.com/tliron/commonlog"

	"cilscope/internal/disasm"
	"cilscope/internal/output"
)

var log = commonlog.GetLogger("cilscope.export")

type runFunc func(ctx context.Context, cypher string, params map[string]any) error

// Neo4jLoader loads graph documents and call edges into Neo4j using batch
// UNWIND queries.
type Neo4jLoader struct {
	driver neo4j.DriverWithContext
	run    runFunc
}

// NewNeo4jLoader connects to Neo4j and returns a ready-to-use loader.
func NewNeo4jLoader(ctx context.Context, uri, user, password string) (*Neo4jLoader, error) {
	driver, err := neo4j.NewDriverWithContext(uri, neo4j.BasicAuth(user, password, ""))
	if err != nil {
		return nil, fmt.Errorf("export: create neo4j driver: %w", err)
	}
	if err := driver.VerifyConnectivity(ctx); err != nil {
		driver.Close(ctx)
		return nil, fmt.Errorf("export: connect %s: %w", uri, err)
	}
	l := &Neo4jLoader{driver: driver}
	l.run = func(ctx context.Context, cypher string, params map[string]any) error {
		_, err := neo4j.ExecuteQuery(ctx, driver, cypher, params, neo4j.EagerResultTransformer)
		return err
	}
	return l, nil
}

// Close releases the underlying driver.
func (l *Neo4jLoader) Close(ctx context.Context) error {
	if l.driver == nil {
		return nil
	}
	return l.driver.Close(ctx)
}

func (l *Neo4jLoader) runAll(ctx context.Context, queries []string) error {
	for _, q := range queries {
		if err := l.run(ctx, q, nil); err != nil {
			return fmt.Errorf("export: %s: %w", q, err)
		}
	}
	return nil
}

func (l *Neo4jLoader) batch(ctx context.Context, cypher string, rows []map[string]any) error {
	if len(rows) == 0 {
		return nil
	}
	if err := l.run(ctx, cypher, map[string]any{"batch": rows}); err != nil {
		return fmt.Errorf("export: %w", err)
	}
	return nil
}

// CleanGraph removes every node and relationship a previous load created.
func (l *Neo4jLoader) CleanGraph(ctx context.Context) error {
	log.Info("cleaning existing graph data")
	return l.runAll(ctx, []string{
		"MATCH (n:CilAssembly) DETACH DELETE n",
		"MATCH (n:CilClass) DETACH DELETE n",
		"MATCH (n:CilInterface) DETACH DELETE n",
		"MATCH (n:CilMethod) DETACH DELETE n",
	})
}

// CreateIndexes ensures the lookup indexes exist.
func (l *Neo4jLoader) CreateIndexes(ctx context.Context) error {
	return l.runAll(ctx, []string{
		"CREATE INDEX cil_assembly_name IF NOT EXISTS FOR (n:CilAssembly) ON (n.name)",
		"CREATE INDEX cil_class_key IF NOT EXISTS FOR (n:CilClass) ON (n.key)",
		"CREATE INDEX cil_iface_key IF NOT EXISTS FOR (n:CilInterface) ON (n.key)",
		"CREATE INDEX cil_method_name IF NOT EXISTS FOR (n:CilMethod) ON (n.full_name)",
	})
}

// LoadGraph upserts assemblies, types and all their relationships.
func (l *Neo4jLoader) LoadGraph(ctx context.Context, doc output.GraphDoc) error {
	steps := []func(context.Context, output.GraphDoc) error{
		l.loadAssemblies,
		l.loadTypes,
		l.loadEdges,
		l.loadDependencies,
	}
	for _, step := range steps {
		if err := step(ctx, doc); err != nil {
			return err
		}
	}
	return nil
}

func (l *Neo4jLoader) loadAssemblies(ctx context.Context, doc output.GraphDoc) error {
	log.Infof("loading %d assemblies", len(doc.Assemblies))
	rows := make([]map[string]any, 0, len(doc.Assemblies))
	for _, a := range doc.Assemblies {
		rows = append(rows, map[string]any{
			"name": a.Name, "version": a.Version, "loaded": a.Loaded,
			"excluded": a.Excluded, "error": a.Error, "root": a.Name == doc.Root,
		})
	}
	return l.batch(ctx,
		`UNWIND $batch AS row
		 MERGE (n:CilAssembly {name: row.name})
		 SET n.version = row.version, n.loaded = row.loaded, n.excluded = row.excluded,
		     n.error = row.error, n.root = row.root`,
		rows)
}

func typeRows(nodes []output.TypeNode) []map[string]any {
	rows := make([]map[string]any, 0, len(nodes))
	for _, t := range nodes {
		rows = append(rows, map[string]any{
			"key": t.Key, "name": t.Name, "namespace": t.Namespace,
			"asm": t.Assembly, "public": t.Public, "members": len(t.Members),
		})
	}
	return rows
}

func (l *Neo4jLoader) loadTypes(ctx context.Context, doc output.GraphDoc) error {
	log.Infof("loading %d classes, %d interfaces", len(doc.Classes), len(doc.Interfaces))
	const cypher = `UNWIND $batch AS row
		 MERGE (n:%s {key: row.key})
		 SET n.name = row.name, n.namespace = row.namespace, n.assembly = row.asm,
		     n.public = row.public, n.member_count = row.members
		 WITH n, row
		 MATCH (a:CilAssembly {name: row.asm})
		 MERGE (n)-[:IN_ASSEMBLY]->(a)`
	if err := l.batch(ctx, fmt.Sprintf(cypher, "CilClass"), typeRows(doc.Classes)); err != nil {
		return err
	}
	return l.batch(ctx, fmt.Sprintf(cypher, "CilInterface"), typeRows(doc.Interfaces))
}

func edgeRows(edges []output.Edge) []map[string]any {
	rows := make([]map[string]any, 0, len(edges))
	for _, e := range edges {
		rows = append(rows, map[string]any{"from": e.From, "to": e.To})
	}
	return rows
}

func (l *Neo4jLoader) loadEdges(ctx context.Context, doc output.GraphDoc) error {
	log.Infof("loading %d reference, %d inheritance edges",
		len(doc.AssemblyEdges), len(doc.ClassEdges)+len(doc.InterfaceEdges))
	err := l.batch(ctx,
		`UNWIND $batch AS row
		 MATCH (a:CilAssembly {name: row.from}), (b:CilAssembly {name: row.to})
		 MERGE (a)-[:REFERENCES]->(b)`,
		edgeRows(doc.AssemblyEdges))
	if err != nil {
		return err
	}
	err = l.batch(ctx,
		`UNWIND $batch AS row
		 MATCH (a:CilClass {key: row.from}), (b:CilClass {key: row.to})
		 MERGE (a)-[:INHERITS]->(b)`,
		edgeRows(doc.ClassEdges))
	if err != nil {
		return err
	}
	return l.batch(ctx,
		`UNWIND $batch AS row
		 MATCH (a:CilInterface {key: row.from}), (b:CilInterface {key: row.to})
		 MERGE (a)-[:EXTENDS]->(b)`,
		edgeRows(doc.InterfaceEdges))
}

func (l *Neo4jLoader) loadDependencies(ctx context.Context, doc output.GraphDoc) error {
	rows := make([]map[string]any, 0, len(doc.Dependencies))
	for _, d := range doc.Dependencies {
		rows = append(rows, map[string]any{"class": d.Class, "member": d.Member, "type": d.Type})
	}
	return l.batch(ctx,
		`UNWIND $batch AS row
		 MATCH (c:CilClass {key: row.class})
		 OPTIONAL MATCH (t:CilClass {key: row.type})
		 OPTIONAL MATCH (i:CilInterface {key: row.type})
		 WITH c, row, coalesce(t, i) AS target
		 WHERE target IS NOT NULL
		 MERGE (c)-[r:DEPENDS_ON {member: row.member}]->(target)`,
		rows)
}

// LoadCalls upserts CALLS relationships between methods. Unresolved edges
// are skipped.
func (l *Neo4jLoader) LoadCalls(ctx context.Context, edges []disasm.CallEdgeRecord) error {
	rows := make([]map[string]any, 0, len(edges))
	for _, e := range edges {
		if !e.Resolved || e.Target == "" {
			continue
		}
		rows = append(rows, map[string]any{
			"caller": e.FromFunc, "callee": e.Target, "kind": e.Kind, "site": e.FromIL,
		})
	}
	log.Infof("loading %d call edges", len(rows))
	return l.batch(ctx,
		`UNWIND $batch AS row
		 MERGE (caller:CilMethod {full_name: row.caller})
		 MERGE (callee:CilMethod {full_name: row.callee})
		 MERGE (caller)-[r:CALLS {site: row.site}]->(callee)
		 SET r.kind = row.kind`,
		rows)
}
