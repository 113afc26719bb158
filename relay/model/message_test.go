package model

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestMergeAdjacentRolesJoinsText(t *testing.T) {
	messages := []Message{
		{Role: RoleUser, Content: "first"},
		{Role: RoleUser, Content: "second"},
		{Role: RoleAssistant, Content: "reply"},
	}

	merged := MergeAdjacentRoles(messages)
	require.Len(t, merged, 2)
	require.Equal(t, "first\nsecond", merged[0].PlainText())
	require.Equal(t, "reply", merged[1].PlainText())
}

func TestMergeAdjacentRolesLeavesInputUntouched(t *testing.T) {
	blocks := []ContentBlock{{Type: ContentTypeText, Text: "first"}}
	messages := []Message{
		{Role: RoleUser, Content: blocks},
		{Role: RoleUser, Content: "second"},
	}

	first := MergeAdjacentRoles(messages)
	second := MergeAdjacentRoles(messages)

	// Translators re-run on retried requests, so merging the same slice
	// twice must give the same result and never write into the caller's
	// backing blocks.
	require.Equal(t, first, second)
	require.Equal(t, "first\nsecond", second[0].PlainText())
	require.Equal(t, "first", blocks[0].Text)
	require.Equal(t, "second", messages[1].Content)
}

func TestMergeAdjacentRolesExtendsBlockLists(t *testing.T) {
	messages := []Message{
		{Role: RoleAssistant, Content: []ContentBlock{
			{Type: ContentTypeToolUse, ID: "toolu_1", Name: "f", Input: map[string]any{}},
		}},
		{Role: RoleAssistant, Content: "and some text"},
	}

	merged := MergeAdjacentRoles(messages)
	require.Len(t, merged, 1)
	got := merged[0].Blocks()
	require.Len(t, got, 2)
	require.Equal(t, ContentTypeToolUse, got[0].Type)
	require.Equal(t, "and some text", got[1].Text)
}
