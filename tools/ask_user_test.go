package tools

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAskUser(t *testing.T) {
	ctx := context.Background()

	t.Run("single choice", func(t *testing.T) {
		env := AskUser(ctx, AskUserArgs{Question: "Which day?", Options: []string{"Monday", " ", "Tuesday"}})
		require.True(t, env.Success, env.Error)
		data := env.Data.(map[string]any)
		assert.Equal(t, SingleChoice, data["question_type"])
		assert.Equal(t, []string{"Monday", "Tuesday"}, data["options"])

		md := data["markdown"].(string)
		assert.Contains(t, md, "**Question type**: single_choice")
		assert.Contains(t, md, "**Question**: Which day?")
		assert.Contains(t, md, "- A. Monday\n- B. Tuesday\n")
		assert.Contains(t, md, "Pick **one** option")
	})

	t.Run("boolean needs no options", func(t *testing.T) {
		env := AskUser(ctx, AskUserArgs{Question: "Repeat weekly?", QuestionType: "Boolean"})
		require.True(t, env.Success, env.Error)
		md := env.Data.(map[string]any)["markdown"].(string)
		assert.NotContains(t, md, "**Options:**")
		assert.Contains(t, md, "yes or no")
	})

	t.Run("choice needs two options", func(t *testing.T) {
		env := AskUser(ctx, AskUserArgs{Question: "Which?", QuestionType: MultiChoice, Options: []string{"only", ""}})
		assert.False(t, env.Success)
		assert.Contains(t, env.Error, "at least 2")
	})

	t.Run("unknown type", func(t *testing.T) {
		env := AskUser(ctx, AskUserArgs{Question: "?", QuestionType: "ranking"})
		assert.False(t, env.Success)
		assert.Contains(t, env.Error, "ranking")
	})

	t.Run("labels past Z", func(t *testing.T) {
		opts := make([]string, 28)
		for i := range opts {
			opts[i] = strings.Repeat("x", i+1)
		}
		env := AskUser(ctx, AskUserArgs{Question: "Pick", QuestionType: MultiChoice, Options: opts})
		require.True(t, env.Success)
		md := env.Data.(map[string]any)["markdown"].(string)
		assert.Contains(t, md, "- Z. ")
		assert.Contains(t, md, "- Option 27. ")
		assert.Contains(t, md, "- Option 28. ")
	})
}

func TestAskUserTool(t *testing.T) {
	tool, err := NewAskUserTool()
	require.NoError(t, err)
	assert.Equal(t, AskUserName, tool.Metadata().Name)

	env, err := tool.Execute(context.Background(), []byte(`{"question":"Morning or evening?","options":["Morning","Evening"]}`))
	require.NoError(t, err)
	assert.True(t, env.Success)
	assert.Contains(t, env.JSON(), `"markdown":`)
}
