package export

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"cilscope/internal/disasm"
	"cilscope/internal/output"
)

type call struct {
	cypher string
	rows   []map[string]any
}

func recorder(fail string) (*Neo4jLoader, *[]call) {
	var calls []call
	l := &Neo4jLoader{run: func(_ context.Context, cypher string, params map[string]any) error {
		c := call{cypher: cypher}
		if params != nil {
			c.rows, _ = params["batch"].([]map[string]any)
		}
		calls = append(calls, c)
		if fail != "" && strings.Contains(cypher, fail) {
			return errors.New("boom")
		}
		return nil
	}}
	return l, &calls
}

var doc = output.GraphDoc{
	Root:          "App",
	Assemblies:    []output.AssemblyNode{{Name: "App", Loaded: true}, {Name: "Lib"}},
	Classes:       []output.TypeNode{{Key: "Demo.A", Assembly: "App", Name: "A"}, {Key: "Demo.B", Assembly: "App", Name: "B", Members: []string{"X"}}},
	AssemblyEdges: []output.Edge{{From: "App", To: "Lib"}},
	ClassEdges:    []output.Edge{{From: "Demo.B", To: "Demo.A"}},
}

func TestLoadGraph(t *testing.T) {
	l, calls := recorder("")
	require.NoError(t, l.LoadGraph(context.Background(), doc))

	// assemblies, classes, references, inherits; empty batches are skipped
	require.Len(t, *calls, 4)
	assert.Contains(t, (*calls)[0].cypher, "MERGE (n:CilAssembly {name: row.name})")
	assert.Equal(t, true, (*calls)[0].rows[0]["root"])
	assert.Equal(t, false, (*calls)[0].rows[1]["root"])
	assert.Contains(t, (*calls)[1].cypher, "MERGE (n:CilClass {key: row.key})")
	assert.Equal(t, 1, (*calls)[1].rows[1]["members"])
	assert.Contains(t, (*calls)[2].cypher, ":REFERENCES")
	assert.Contains(t, (*calls)[3].cypher, ":INHERITS")
	assert.Equal(t, map[string]any{"from": "Demo.B", "to": "Demo.A"}, (*calls)[3].rows[0])
}

func TestLoadGraphError(t *testing.T) {
	l, calls := recorder("CilClass {key: row.key}")
	err := l.LoadGraph(context.Background(), doc)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "boom")
	assert.Len(t, *calls, 2)
}

func TestLoadCalls(t *testing.T) {
	l, calls := recorder("")
	err := l.LoadCalls(context.Background(), []disasm.CallEdgeRecord{
		{FromFunc: "A::M", FromIL: "IL_0001", Kind: "call", Target: "B::N", Resolved: true},
		{FromFunc: "A::M", FromIL: "IL_0006", Kind: "call", Token: "0x0A000002"},
	})
	require.NoError(t, err)
	require.Len(t, *calls, 1)
	assert.Equal(t, []map[string]any{{"caller": "A::M", "callee": "B::N", "kind": "call", "site": "IL_0001"}}, (*calls)[0].rows)
}

func TestCleanAndIndexes(t *testing.T) {
	l, calls := recorder("")
	require.NoError(t, l.CleanGraph(context.Background()))
	require.NoError(t, l.CreateIndexes(context.Background()))
	assert.Len(t, *calls, 8)
	for _, c := range *calls {
		assert.Nil(t, c.rows)
	}
	assert.NoError(t, l.Close(context.Background()))
}
