package graphloader_test

import (
	"testing"

	"github.com/icrar/dfms/dropspec"
	"github.com/icrar/dfms/graphloader"
)

func TestRemoveUnmetRelationshipsKeepsLocalRefs(t *testing.T) {
	specs := []*dropspec.DropSpec{
		{OID: "a", Extra: map[string]interface{}{
			dropspec.RelConsumers: []string{"b", "remote-1"},
		}},
		{OID: "b"},
	}

	removed := graphloader.RemoveUnmetRelationships(specs)
	if len(removed) != 1 || removed[0] != (dropspec.DropRel{LHS: "a", Rel: dropspec.RelConsumers, RHS: "remote-1"}) {
		t.Fatalf("unexpected removed rels: %#v", removed)
	}

	kept, _ := specs[0].Extra[dropspec.RelConsumers].([]string)
	if len(kept) != 1 || kept[0] != "b" {
		t.Fatalf("expected local consumer to survive, got %#v", kept)
	}
}

func TestRemoveUnmetRelationshipsDropsEmptyKey(t *testing.T) {
	specs := []*dropspec.DropSpec{
		{OID: "a", Extra: map[string]interface{}{
			dropspec.RelInputs: []string{"remote-only"},
		}},
	}

	graphloader.RemoveUnmetRelationships(specs)
	if _, ok := specs[0].Extra[dropspec.RelInputs]; ok {
		t.Fatal("expected inputs key to be removed once empty")
	}
}

func TestAddLinkAppendsToTarget(t *testing.T) {
	target := &dropspec.DropSpec{OID: "rhs-1"}
	graphloader.AddLink(dropspec.RelConsumers, target, "lhs-1")

	got, _ := target.Extra[dropspec.RelConsumers].([]string)
	if len(got) != 1 || got[0] != "lhs-1" {
		t.Fatalf("expected lhs-1 to be linked, got %#v", got)
	}
}

func TestAddLinkOnNilTargetIsNoop(t *testing.T) {
	graphloader.AddLink(dropspec.RelConsumers, nil, "lhs-1")
}
