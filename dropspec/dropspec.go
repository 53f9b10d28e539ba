// Package dropspec holds the data model shared by every tier of the
// drop-manager hierarchy: the physical-graph records (DropSpec), the
// session-scoped graph they live in (Graph), the inter-partition
// relationships extracted while partitioning a graph (DropRel,
// InterPartitionMap), and the set of known session ids (SessionRegistry).
package dropspec

// Relation kinds a DropSpec's Extra payload may reference. These mirror
// the physical-graph schema consumed by graphloader.RemoveUnmetRelationships.
const (
	RelProducers          = "producers"
	RelConsumers          = "consumers"
	RelStreamingConsumers = "streamingConsumers"
	RelInputs             = "inputs"
	RelOutputs            = "outputs"
)

// DropSpec is a single node of a physical dataflow graph, as submitted to
// a manager via AddGraphSpec. OID is mandatory; UID defaults to OID when
// absent. Node and Island are independent attributes, both of which may
// be set on the same spec at once: Node always names the ultimate leaf
// Node a drop is pinned to, the value group_by_node/_do_partition read
// verbatim via graph[uid]['node'] regardless of which tier is doing the
// work (original_source/dfms/manager/composite_manager.py:75-79,332-338),
// while Island names the Island a drop belongs to and is only meaningful
// at the Master tier, which partitions by "island" rather than "node".
// Collapsing these onto one field breaks a Master manager, which needs
// both simultaneously: the island value to bucket the graph across
// Islands, and the node value to route subscriptions/triggers to the
// right leaf Node once the hierarchy is bypassed. Extra forwards every
// key of the originating graph-spec record that this package doesn't
// model explicitly, so nothing submitted by a caller is silently dropped
// on the floor.
type DropSpec struct {
	OID    string
	UID    string
	Node   string
	Island string
	Extra  map[string]interface{}
}

// UIDFor returns the spec's UID, defaulting to its OID if UID was never
// set explicitly.
func UIDFor(spec *DropSpec) string {
	if spec.UID != "" {
		return spec.UID
	}
	return spec.OID
}

// PartitionValue returns the value of the named partition attribute for
// this spec, reading the matching well-known field for "node"/"island"
// and otherwise looking inside Extra. Node and Island are distinct
// fields, so a Master-tier spec (partitioned on "island") and an
// Island-tier spec (partitioned on "node") never collide, even when both
// values are set on the same spec. ok is false when the attribute is
// entirely absent.
func (d *DropSpec) PartitionValue(attr string) (value string, ok bool) {
	switch attr {
	case "node":
		if d.Node != "" {
			return d.Node, true
		}
	case "island":
		if d.Island != "" {
			return d.Island, true
		}
	}
	if d.Extra != nil {
		if raw, present := d.Extra[attr]; present {
			if s, isStr := raw.(string); isStr {
				return s, true
			}
		}
	}
	return "", false
}

// Link attaches rhs as a named relation of the given kind on the spec's
// Extra payload, appending to any existing list under that key.
func (d *DropSpec) Link(kind, rhs string) {
	if d.Extra == nil {
		d.Extra = make(map[string]interface{})
	}
	existing, _ := d.Extra[kind].([]string)
	d.Extra[kind] = append(existing, rhs)
}

// Graph is a session's in-memory physical graph, keyed by UID.
type Graph map[string]*DropSpec

// Add inserts spec into the graph under UIDFor(spec).
func (g Graph) Add(spec *DropSpec) {
	g[UIDFor(spec)] = spec
}

// DropRel is a single inter-drop relationship: LHS is related to RHS via
// a relation of kind Rel (one of the Rel* constants).
type DropRel struct {
	LHS string
	Rel string
	RHS string
}

// InterPartitionMap records, per session, the relationships that cross a
// partition boundary: InterPartitionMap[sessionID][fromHost][toHost] is
// the (symmetric) list of DropRels linking the two hosts.
type InterPartitionMap map[string]map[string]map[string][]DropRel

// Rels returns the per-session relation bucket, creating it if absent.
func (m InterPartitionMap) Rels(sessionID string) map[string]map[string][]DropRel {
	if m[sessionID] == nil {
		m[sessionID] = make(map[string]map[string][]DropRel)
	}
	return m[sessionID]
}

// Add records rel as crossing the boundary between the hosts owning its
// two endpoints, symmetrically in both directions.
func (m InterPartitionMap) Add(sessionID, lhsHost, rhsHost string, rel DropRel) {
	rels := m.Rels(sessionID)
	if rels[lhsHost] == nil {
		rels[lhsHost] = make(map[string][]DropRel)
	}
	if rels[rhsHost] == nil {
		rels[rhsHost] = make(map[string][]DropRel)
	}
	rels[lhsHost][rhsHost] = append(rels[lhsHost][rhsHost], rel)
	rels[rhsHost][lhsHost] = append(rels[rhsHost][lhsHost], rel)
}

// All flattens the per-session relation map into a single deduplicated
// slice, used when reconnecting a merged getGraph response.
func (m InterPartitionMap) All(sessionID string) []DropRel {
	seen := make(map[DropRel]struct{})
	var out []DropRel
	for _, byHost := range m.Rels(sessionID) {
		for _, rels := range byHost {
			for _, rel := range rels {
				if _, dup := seen[rel]; dup {
					continue
				}
				seen[rel] = struct{}{}
				out = append(out, rel)
			}
		}
	}
	return out
}

// SessionRegistry is an ordered, duplicate-free record of known session
// ids, mirroring the upstream manager's plain list with append/remove.
type SessionRegistry struct {
	ids []string
}

// Add appends sessionID unless it is already present.
func (r *SessionRegistry) Add(sessionID string) {
	for _, id := range r.ids {
		if id == sessionID {
			return
		}
	}
	r.ids = append(r.ids, sessionID)
}

// Remove drops sessionID from the registry, if present.
func (r *SessionRegistry) Remove(sessionID string) {
	for i, id := range r.ids {
		if id == sessionID {
			r.ids = append(r.ids[:i], r.ids[i+1:]...)
			return
		}
	}
}

// Has reports whether sessionID is currently registered.
func (r *SessionRegistry) Has(sessionID string) bool {
	for _, id := range r.ids {
		if id == sessionID {
			return true
		}
	}
	return false
}

// All returns a copy of the registered session ids.
func (r *SessionRegistry) All() []string {
	out := make([]string, len(r.ids))
	copy(out, r.ids)
	return out
}

// GroupByNode buckets uids by the Node attribute of their DropSpec in g.
func GroupByNode(uids []string, g Graph) map[string][]string {
	byNode := make(map[string][]string)
	for _, uid := range uids {
		spec, ok := g[uid]
		if !ok {
			continue
		}
		byNode[spec.Node] = append(byNode[spec.Node], uid)
	}
	return byNode
}
