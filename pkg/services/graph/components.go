package graph

import (
	"fmt"
	"sort"

	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-metagraph/pkg/models"
)

// TableGraph is an undirected graph of tables or collections connected by
// foreign keys or inferred references.
type TableGraph struct {
	// Adjacency list: table -> tables it's connected to
	edges map[string][]string
	// All unique tables in the graph
	tables map[string]bool
}

// NewTableGraph creates a new empty table graph.
func NewTableGraph() *TableGraph {
	return &TableGraph{
		edges:  make(map[string][]string),
		tables: make(map[string]bool),
	}
}

// AddTable adds a table without any edges, so tables with no relationships
// are reported as islands.
func (g *TableGraph) AddTable(name string) {
	g.tables[name] = true
}

// AddLink adds an undirected edge between two tables.
func (g *TableGraph) AddLink(a, b string) {
	g.tables[a] = true
	g.tables[b] = true
	if a == b {
		return
	}
	g.edges[a] = append(g.edges[a], b)
	g.edges[b] = append(g.edges[b], a)
}

// AddForeignKey links the source and target tables of fk.
func (g *TableGraph) AddForeignKey(fk models.ForeignKeyConstraint) {
	g.AddLink(qualify(fk.SourceSchema, fk.SourceTable), qualify(fk.TargetSchema, fk.TargetTable))
}

func qualify(schema, table string) string {
	if schema == "" {
		return table
	}
	return schema + "." + table
}

// ConnectedComponent is a group of tables connected by relationships.
type ConnectedComponent struct {
	Tables []string `json:"tables"`
	Size   int      `json:"size"`
}

// FindConnectedComponents returns components of two or more tables, largest
// first, and the island tables that have no relationship at all. Both are
// sorted for stable output.
func (g *TableGraph) FindConnectedComponents() ([]ConnectedComponent, []string) {
	names := make([]string, 0, len(g.tables))
	for t := range g.tables {
		names = append(names, t)
	}
	sort.Strings(names)

	visited := make(map[string]bool, len(names))
	var components []ConnectedComponent
	islands := []string{}

	for _, table := range names {
		if visited[table] {
			continue
		}
		component := g.dfs(table, visited)
		if len(component) == 1 {
			islands = append(islands, component[0])
			continue
		}
		sort.Strings(component)
		components = append(components, ConnectedComponent{Tables: component, Size: len(component)})
	}

	sort.SliceStable(components, func(i, j int) bool { return components[i].Size > components[j].Size })
	return components, islands
}

// dfs returns every table reachable from start.
func (g *TableGraph) dfs(start string, visited map[string]bool) []string {
	var component []string
	stack := []string{start}

	for len(stack) > 0 {
		current := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		if visited[current] {
			continue
		}
		visited[current] = true
		component = append(component, current)

		for _, neighbor := range g.edges[current] {
			if !visited[neighbor] {
				stack = append(stack, neighbor)
			}
		}
	}
	return component
}

// Connectivity summarizes how a source's tables hang together.
type Connectivity struct {
	Relationships int                  `json:"relationships"`
	Components    []ConnectedComponent `json:"components"`
	Islands       []string             `json:"islands"`
}

// SnapshotConnectivity analyzes the relationships of a crawl snapshot.
func SnapshotConnectivity(snap models.Snapshot) Connectivity {
	g := NewTableGraph()
	var fks []models.ForeignKeyConstraint

	switch s := snap.(type) {
	case *models.RelationalSnapshot:
		for _, t := range s.Tables {
			g.AddTable(qualify(t.Schema, t.Name))
		}
		fks = s.ForeignKeys
	case *models.DocumentSnapshot:
		for _, c := range s.Collections {
			g.AddTable(qualify(s.Database, c.Name))
		}
		fks = s.References
	}
	for _, fk := range fks {
		g.AddForeignKey(fk)
	}

	components, islands := g.FindConnectedComponents()
	return Connectivity{Relationships: len(fks), Components: components, Islands: islands}
}

// StoredConnectivity analyzes a materialized graph. Containers are the
// targets of CONTAINS edges; a FOREIGN_KEY edge links the containers of its
// two endpoints.
func StoredConnectivity(nodes []*models.GraphNode, edges []*models.GraphEdge) Connectivity {
	g := NewTableGraph()
	parent := map[string]string{}

	for _, e := range edges {
		switch e.Type {
		case models.EdgeTypeContains:
			g.AddTable(e.DstID)
		case models.EdgeTypeHasColumn, models.EdgeTypeHasField:
			parent[e.DstID] = e.SrcID
		}
	}

	fkCount := 0
	for _, e := range edges {
		if e.Type != models.EdgeTypeForeignKey {
			continue
		}
		src, okSrc := parent[e.SrcID]
		dst, okDst := parent[e.DstID]
		if !okSrc || !okDst {
			continue
		}
		fkCount++
		g.AddLink(src, dst)
	}

	// Containers present without a CONTAINS edge still count as tables.
	for _, n := range nodes {
		if n.Type == models.NodeTypeTable || n.Type == models.NodeTypeCollection {
			g.AddTable(n.ID)
		}
	}

	components, islands := g.FindConnectedComponents()
	return Connectivity{Relationships: fkCount, Components: components, Islands: islands}
}

// LogConnectivity logs the analysis in a human-readable form.
func LogConnectivity(c Connectivity, logger *zap.Logger) {
	logger.Info(fmt.Sprintf("Graph connectivity: %d relationships", c.Relationships))

	for i, comp := range c.Components {
		logger.Info(fmt.Sprintf("  Component %d (%d tables): %v", i+1, comp.Size, preview(comp.Tables)))
	}
	if len(c.Islands) > 0 {
		logger.Info(fmt.Sprintf("  Island tables (%d): %v", len(c.Islands), preview(c.Islands)))
	}
}

// preview shows the first five names, then a count of the rest.
func preview(names []string) string {
	if len(names) <= 5 {
		return fmt.Sprintf("%v", names)
	}
	return fmt.Sprintf("%v, ... (%d more)", names[:5], len(names)-5)
}
