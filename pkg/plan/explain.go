// pkg/plan/explain.go
package plan

import (
	"fmt"
	"strings"

	jsoniter "github.com/json-iterator/go"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// Explain renders the plan as an indented operator tree.
func (p *QueryPlan) Explain() string {
	var b strings.Builder
	explainNode(&b, p.Root, 0)
	return b.String()
}

func explainNode(b *strings.Builder, n Node, depth int) {
	b.WriteString(strings.Repeat("  ", depth))
	b.WriteString(n.Label())
	fmt.Fprintf(b, " cost=%.2f\n", n.EstimatedCost())
	for _, c := range n.Children() {
		explainNode(b, c, depth+1)
	}
}

// explainEntry is the JSON shape of one operator.
type explainEntry struct {
	Type          string         `json:"type"`
	Label         string         `json:"label"`
	EstimatedRows int64          `json:"estimated_rows"`
	EstimatedCost float64        `json:"estimated_cost"`
	Table         string         `json:"table,omitempty"`
	Index         string         `json:"index,omitempty"`
	Column        string         `json:"column,omitempty"`
	Predicate     string         `json:"predicate,omitempty"`
	Strategy      string         `json:"strategy,omitempty"`
	JoinType      string         `json:"join_type,omitempty"`
	Children      []explainEntry `json:"children,omitempty"`
}

// ExplainJSON renders the plan as a JSON tree. The "type" field names are
// stable and may be asserted on by tools.
func (p *QueryPlan) ExplainJSON() (string, error) {
	out, err := json.MarshalIndent(toEntry(p.Root), "", "  ")
	if err != nil {
		return "", err
	}
	return string(out), nil
}

func toEntry(n Node) explainEntry {
	e := explainEntry{
		Type:          nodeType(n),
		Label:         n.Label(),
		EstimatedRows: n.EstimatedRows(),
		EstimatedCost: n.EstimatedCost(),
	}
	switch v := n.(type) {
	case *Scan:
		e.Table = v.Table
	case *IndexScan:
		e.Table = v.Table
		e.Index = v.Index
		e.Column = v.Column
	case *Filter:
		e.Predicate = v.Predicate.String()
	case *Join:
		e.Strategy = v.Strategy.String()
		e.JoinType = v.Type.String()
	}
	for _, c := range n.Children() {
		e.Children = append(e.Children, toEntry(c))
	}
	return e
}

func nodeType(n Node) string {
	switch n.(type) {
	case *Scan:
		return "scan"
	case *IndexScan:
		return "index_scan"
	case *Filter:
		return "filter"
	case *Projection:
		return "projection"
	case *Join:
		return "join"
	case *Limit:
		return "limit"
	case *Aggregate:
		return "aggregate"
	default:
		return "unknown"
	}
}

// ExplainMermaid renders the plan as a mermaid flowchart, parents pointing
// at their inputs.
func (p *QueryPlan) ExplainMermaid() string {
	var b strings.Builder
	b.WriteString("graph TD\n")
	counter := 0
	mermaidNode(&b, p.Root, &counter)
	return b.String()
}

func mermaidNode(b *strings.Builder, n Node, counter *int) int {
	id := *counter
	*counter++
	label := strings.NewReplacer("[", "(", "]", ")", "\"", "'").Replace(n.Label())
	fmt.Fprintf(b, "  n%d[\"%s\"]\n", id, label)
	for _, c := range n.Children() {
		childID := mermaidNode(b, c, counter)
		fmt.Fprintf(b, "  n%d --> n%d\n", id, childID)
	}
	return id
}
