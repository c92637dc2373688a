package analytics

import (
	"sort"
	"strings"

	"github.com/lvonguyen/cdrforge/internal/cdr"
)

// NodeKind classifies a graph node.
type NodeKind string

const (
	NodeSubject     NodeKind = "subject"
	NodeCounterpart NodeKind = "counterpart"
	NodeShared      NodeKind = "shared"
)

// Node is one phone number in the contact graph.
type Node struct {
	ID        string   `json:"id"`
	Kind      NodeKind `json:"kind"`
	Label     string   `json:"label,omitempty"`
	SharedBy  []string `json:"shared_by,omitempty"`
	CallCount int      `json:"call_count"`
	Degree    int      `json:"degree"`

	// Aliases lists other spellings of the same number seen in the
	// records, such as the national form of an international ID.
	Aliases []string `json:"aliases,omitempty"`
}

// Edge links a subject to a counterpart.
type Edge struct {
	Source        string  `json:"source"`
	Target        string  `json:"target"`
	Weight        int     `json:"weight"`
	TotalDuration float64 `json:"total_duration"`
}

// NetworkGraph is the subject/counterpart contact graph.
type NetworkGraph struct {
	Nodes []*Node `json:"nodes"`
	Edges []*Edge `json:"edges"`
}

// Shared returns the counterparts reached by two or more subjects.
func (g *NetworkGraph) Shared() []*Node {
	out := []*Node{}
	for _, n := range g.Nodes {
		if n.Kind == NodeShared {
			out = append(out, n)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		if len(out[i].SharedBy) != len(out[j].SharedBy) {
			return len(out[i].SharedBy) > len(out[j].SharedBy)
		}
		return out[i].CallCount > out[j].CallCount
	})
	return out
}

// Graph builds the contact graph in a single pass: subjects in input order,
// each subject's records in time order. Node and edge order follow first
// appearance, so equal inputs give equal graphs. Numbers that cdr.SameNumber
// treats as equal share one node, named by the first spelling seen.
func Graph(subjects []Subject) *NetworkGraph {
	g := &NetworkGraph{Nodes: []*Node{}, Edges: []*Edge{}}
	idx := newNodeIndex()
	edges := make(map[[2]string]*Edge)
	reachedBy := make(map[string]map[string]bool)

	node := func(num string, kind NodeKind) *Node {
		n, ok := idx.find(num)
		if !ok {
			n = &Node{ID: num, Kind: kind}
			idx.add(n)
			g.Nodes = append(g.Nodes, n)
		}
		return n
	}

	for _, s := range subjects {
		sn := node(s.ID(), NodeSubject)
		sn.Kind = NodeSubject
		if s.Label != "" {
			sn.Label = s.Label
		}
		sid := sn.ID

		for _, r := range byTime(s.Records) {
			cp := r.Counterpart(s.Number)
			if cp == "" {
				continue
			}
			cn := node(cp, NodeCounterpart)
			if cn == sn {
				continue
			}
			sn.CallCount++
			cn.CallCount++

			if reachedBy[cn.ID] == nil {
				reachedBy[cn.ID] = make(map[string]bool)
			}
			if !reachedBy[cn.ID][sid] {
				reachedBy[cn.ID][sid] = true
				cn.SharedBy = append(cn.SharedBy, sid)
			}

			k := [2]string{sid, cn.ID}
			e, ok := edges[k]
			if !ok {
				e = &Edge{Source: sid, Target: cn.ID}
				edges[k] = e
				g.Edges = append(g.Edges, e)
				sn.Degree++
				cn.Degree++
			}
			e.Weight++
			e.TotalDuration += r.DurationSeconds
		}
	}

	for _, n := range g.Nodes {
		switch {
		case n.Kind == NodeSubject:
			n.SharedBy = nil
		case len(n.SharedBy) >= 2:
			n.Kind = NodeShared
		default:
			n.SharedBy = nil
		}
	}
	return g
}

// nodeIndex resolves phone numbers to graph nodes. Candidates are bucketed
// by their last eight digits, the shortest suffix cdr.SameNumber matches on.
type nodeIndex struct {
	bySpelling map[string]*Node
	bySuffix   map[string][]*Node
}

func newNodeIndex() *nodeIndex {
	return &nodeIndex{
		bySpelling: make(map[string]*Node),
		bySuffix:   make(map[string][]*Node),
	}
}

func (x *nodeIndex) find(num string) (*Node, bool) {
	if n, ok := x.bySpelling[num]; ok {
		return n, true
	}
	for _, n := range x.bySuffix[suffixKey(num)] {
		if cdr.SameNumber(n.ID, num) {
			x.bySpelling[num] = n
			n.Aliases = append(n.Aliases, num)
			return n, true
		}
	}
	return nil, false
}

func (x *nodeIndex) add(n *Node) {
	x.bySpelling[n.ID] = n
	k := suffixKey(n.ID)
	x.bySuffix[k] = append(x.bySuffix[k], n)
}

func suffixKey(num string) string {
	num = strings.TrimPrefix(num, "+")
	if len(num) > 8 {
		return num[len(num)-8:]
	}
	return num
}
