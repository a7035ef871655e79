package graph

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/drpcorg/ptree/action"
)

func TestDiffOrder(t *testing.T) {
	old := New().
		AddApp("a", "x.A", "").
		AddApp("b", "x.B", "n 1;").
		Connect("a.out -> b.in")
	fresh := New().
		AddApp("b", "x.B", "n 2;").
		AddApp("c", "x.C", "").
		Connect("b.out -> c.in")

	acts := Diff(old, fresh)
	assert.Equal(t, []action.Action{
		{Verb: action.DisconnectLink, Link: "a.out -> b.in"},
		{Verb: action.RemoveApp, Name: "a"},
		{Verb: action.AddApp, Name: "c", Kind: "x.C"},
		{Verb: action.ReconfigApp, Name: "b", Kind: "x.B", Config: "n 2;"},
		{Verb: action.ConnectLink, Link: "b.out -> c.in"},
	}, acts)
}

func TestDiffKindChange(t *testing.T) {
	old := New().AddApp("nic", "intel.Old", "")
	fresh := New().AddApp("nic", "intel.New", "")

	acts := Diff(old, fresh)
	assert.Equal(t, []action.Action{
		{Verb: action.RemoveApp, Name: "nic"},
		{Verb: action.AddApp, Name: "nic", Kind: "intel.New"},
	}, acts)
}

func TestDiffIdentical(t *testing.T) {
	g := New().AddApp("a", "x.A", "cfg").Connect("a.l -> a.r")
	assert.Empty(t, Diff(g, g))
}

func TestDiffDeterministic(t *testing.T) {
	old := New()
	fresh := New().
		AddApp("z", "k", "").
		AddApp("a", "k", "").
		AddApp("m", "k", "")

	first := Diff(old, fresh)
	for i := 0; i < 10; i++ {
		assert.Equal(t, first, Diff(old, fresh))
	}
	assert.Equal(t, "a", first[0].Name)
	assert.Equal(t, "m", first[1].Name)
	assert.Equal(t, "z", first[2].Name)
}
