// Package partition buckets a session's physical graph by the partition
// attribute of the manager tier doing the partitioning, and sanitises the
// inter-partition relationships the bucketing process strips out.
package partition

import (
	"github.com/icrar/dfms/dmerrors"
	"github.com/icrar/dfms/dropspec"
	"github.com/icrar/dfms/graphloader"
)

// Result is the outcome of partitioning a graph-spec submission: one
// bucket of DropSpecs per owning host, plus the relationships that used
// to cross a partition boundary (in OID space, before sanitising).
type Result struct {
	PerHost map[string][]*dropspec.DropSpec
	Removed []dropspec.DropRel
}

// Partition buckets specs by attr, validating that every spec carries the
// attribute and that its value names one of hosts. Matching
// CompositeManager.addGraphSpec, validation happens before any bucket is
// populated: a single bad spec fails the whole call.
func Partition(specs []*dropspec.DropSpec, hosts []string, attr string) (*Result, error) {
	known := make(map[string]struct{}, len(hosts))
	for _, h := range hosts {
		known[h] = struct{}{}
	}

	for _, spec := range specs {
		value, ok := spec.PartitionValue(attr)
		if !ok {
			return nil, &dmerrors.InvalidGraphError{
				OID:    spec.OID,
				Reason: "doesn't specify a " + attr + " attribute",
			}
		}
		if _, belongs := known[value]; !belongs {
			return nil, &dmerrors.InvalidGraphError{
				OID:    spec.OID,
				Reason: "'s " + attr + " " + value + " does not belong to this manager",
			}
		}
	}

	perHost := make(map[string][]*dropspec.DropSpec)
	for _, spec := range specs {
		value, _ := spec.PartitionValue(attr)
		perHost[value] = append(perHost[value], spec)
	}

	var removed []dropspec.DropRel
	for _, bucket := range perHost {
		removed = append(removed, graphloader.RemoveUnmetRelationships(bucket)...)
	}

	return &Result{PerHost: perHost, Removed: removed}, nil
}

// SanitizeRelations rewrites rels (in OID space) to UID space in place,
// finding each endpoint's spec in graph by its OID and substituting its
// UID, and returns rels. This is the Go port of sanitize_relations:
// drop-spec payloads identify endpoints by OID, but once drops exist at
// the remote tier everything else is indexed by UID.
func SanitizeRelations(rels []dropspec.DropRel, graph dropspec.Graph) []dropspec.DropRel {
	byOID := make(map[string]*dropspec.DropSpec, len(graph))
	for _, spec := range graph {
		byOID[spec.OID] = spec
	}
	for i, rel := range rels {
		lhs := rel.LHS
		if spec, ok := byOID[rel.LHS]; ok {
			lhs = dropspec.UIDFor(spec)
		}
		rhs := rel.RHS
		if spec, ok := byOID[rel.RHS]; ok {
			rhs = dropspec.UIDFor(spec)
		}
		rels[i] = dropspec.DropRel{LHS: lhs, Rel: rel.Rel, RHS: rhs}
	}
	return rels
}

// RecordInterPartition derives the per-node-pair inter-partition map for
// sessionID from sanitized rels, looking each endpoint's leaf Node (its
// Node field) up in graph (keyed by UID, after SanitizeRelations has run).
func RecordInterPartition(m dropspec.InterPartitionMap, sessionID string, rels []dropspec.DropRel, graph dropspec.Graph) {
	for _, rel := range rels {
		lhsSpec, lhsOK := graph[rel.LHS]
		rhsSpec, rhsOK := graph[rel.RHS]
		if !lhsOK || !rhsOK {
			continue
		}
		m.Add(sessionID, lhsSpec.Node, rhsSpec.Node, rel)
	}
}
