// Package graphloader is the Go-native reconstruction of the dfms
// graph_loader contract referenced (but not defined) by the composite
// manager: stripping relationships that cross a partition boundary out of
// a graph-spec bucket, and re-linking them once the bucket's graph has
// been materialised on the remote side.
package graphloader

import "github.com/icrar/dfms/dropspec"

// relKinds lists every relation key a DropSpec's Extra payload may carry,
// taken from DALiuGE's physical-graph schema.
var relKinds = []string{
	dropspec.RelProducers,
	dropspec.RelConsumers,
	dropspec.RelStreamingConsumers,
	dropspec.RelInputs,
	dropspec.RelOutputs,
}

// RemoveUnmetRelationships strips, from every spec in specs, any
// relationship referencing an OID that isn't present among specs, and
// returns the stripped relationships (in OID space, in encounter order)
// so the caller can record them as inter-partition relationships.
func RemoveUnmetRelationships(specs []*dropspec.DropSpec) []dropspec.DropRel {
	local := make(map[string]struct{}, len(specs))
	for _, spec := range specs {
		local[spec.OID] = struct{}{}
	}

	var removed []dropspec.DropRel
	for _, spec := range specs {
		if spec.Extra == nil {
			continue
		}
		for _, kind := range relKinds {
			raw, ok := spec.Extra[kind].([]string)
			if !ok {
				continue
			}
			var kept []string
			for _, rhs := range raw {
				if _, isLocal := local[rhs]; isLocal {
					kept = append(kept, rhs)
					continue
				}
				removed = append(removed, dropspec.DropRel{LHS: spec.OID, Rel: kind, RHS: rhs})
			}
			if len(kept) == 0 {
				delete(spec.Extra, kind)
			} else {
				spec.Extra[kind] = kept
			}
		}
	}
	return removed
}

// AddLink adds peer as a link of kind rel on target, the reverse of what
// RemoveUnmetRelationships stripped. RemoveUnmetRelationships reports the
// spec that held the relation as LHS and the missing endpoint as RHS, so
// callers restoring a DropRel pass the LHS-side DropSpec (e.g.
// merged[rel.LHS]) as target and rel.RHS as peer.
func AddLink(rel string, target *dropspec.DropSpec, peer string) {
	if target == nil {
		return
	}
	target.Link(rel, peer)
}
