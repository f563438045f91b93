package agent

import "sync"

// Node describes one agent instance's position in a run's agent tree.
type Node struct {
	ID       ID
	ParentID ID // empty for the main (root) agent
	Type     Ident
}

// Tree tracks the parent/child relationships for every agent spawned during a
// single run. It is the structure design note §9 ("Back-reference parent →
// child") describes: children know their ParentID, parents hold only
// ChildRunIDs, and the wire protocol's ParentAgentID tag on a streamed chunk
// is computed by walking upward from the emitter rather than stored
// per-chunk. One Tree is created per run and is safe for concurrent use,
// since `spawn_agents` starts sibling children concurrently (spec.md §5).
type Tree struct {
	mu       sync.RWMutex
	nodes    map[ID]Node
	children map[ID][]ID // parent -> children, in Add order
}

// NewTree creates a tree rooted at the given main-agent id.
func NewTree(root ID, rootType Ident) *Tree {
	t := &Tree{nodes: make(map[ID]Node), children: make(map[ID][]ID)}
	t.nodes[root] = Node{ID: root, Type: rootType}
	return t
}

// Add registers a newly spawned child under parent. Safe to call concurrently
// for sibling children spawned by the same `spawn_agents` batch; the order in
// which concurrent callers observe their own Add is preserved in Children,
// but the relative order across concurrent siblings follows lock acquisition
// order, not spawn-request order (callers that need input order must track
// it themselves, as the Orchestrator does).
func (t *Tree) Add(id, parent ID, typ Ident) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.nodes[id] = Node{ID: id, ParentID: parent, Type: typ}
	t.children[parent] = append(t.children[parent], id)
}

// Parent returns the immediate parent of id, and whether id is known and has
// a parent (the root agent has no parent and returns ("", false)).
func (t *Tree) Parent(id ID) (ID, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	n, ok := t.nodes[id]
	if !ok || n.ParentID == "" {
		return "", false
	}
	return n.ParentID, true
}

// NearestAncestorTag returns the ParentAgentID to stamp on a stream chunk
// emitted by id: the id's own parent, or "" if id is the root agent. This
// mirrors spec.md §4.3/§4.7: "both events carry parentAgentId set to the
// nearest ancestor's id" for a child agent, and is left empty for the main
// agent.
func (t *Tree) NearestAncestorTag(id ID) ID {
	parent, ok := t.Parent(id)
	if !ok {
		return ""
	}
	return parent
}

// Children returns the direct children of id in the order they were added.
// Used to populate AgentState.childRunIds (spec.md §3).
func (t *Tree) Children(id ID) []ID {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make([]ID, len(t.children[id]))
	copy(out, t.children[id])
	return out
}
