package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDiff_NoChanges(t *testing.T) {
	s := State{MessagesKey: []Message{Human("a")}, "x": 1}
	assert.Nil(t, Diff(MessagesSchema(), s, s.Clone()))
}

func TestDiff_AppendedAndReplaced(t *testing.T) {
	schema := MessagesSchema()
	before := State{
		MessagesKey: []Message{{ID: "1", Role: RoleHuman, Content: "a"}},
		"next":      "x",
		"same":      true,
	}
	after := State{
		MessagesKey: []Message{{ID: "1", Role: RoleHuman, Content: "a"}, AI("b")},
		"next":      "y",
		"same":      true,
		"new":       3,
	}

	delta := Diff(schema, before, after)
	assert.Equal(t, State{
		MessagesKey: []Message{AI("b")},
		"next":      "y",
		"new":       3,
	}, delta)

	// Merging the diff back reproduces after.
	merged, err := Merge(schema, before, delta)
	require.NoError(t, err)
	assert.Equal(t, after, merged)
}

func TestDiff_InPlaceReplacement(t *testing.T) {
	schema := MessagesSchema()
	before := State{MessagesKey: []Message{{ID: "1", Content: "old"}}}
	after := State{MessagesKey: []Message{{ID: "1", Content: "new"}}}

	delta := Diff(schema, before, after)
	merged, err := Merge(schema, before, delta)
	require.NoError(t, err)
	assert.Equal(t, after, merged)
}

func TestDiff_MatchesIdentifiedElementsByIdentity(t *testing.T) {
	schema := MessagesSchema()
	a := Message{ID: "a", Role: RoleHuman, Content: "a"}
	b := Message{ID: "b", Role: RoleAssistant, Content: "b"}
	before := State{MessagesKey: []Message{a, b}}

	// Same elements in another order are not new.
	assert.Nil(t, Diff(schema, before, State{MessagesKey: []Message{b, a}}))

	edited := Message{ID: "a", Role: RoleHuman, Content: "a2"}
	delta := Diff(schema, before, State{MessagesKey: []Message{b, edited, AI("c")}})
	assert.Equal(t, State{MessagesKey: []Message{edited, AI("c")}}, delta)

	merged, err := Merge(schema, before, delta)
	require.NoError(t, err)
	assert.Equal(t, []Message{edited, b, AI("c")}, merged.Messages())
}
