package tools

import (
	"context"
	"fmt"
	"strings"
)

// AskUserName is the clarification question tool.
const AskUserName = "askUserQuestion"

// Question types.
const (
	SingleChoice = "single_choice"
	MultiChoice  = "multi_choice"
	Boolean      = "boolean"
)

// AskUserArgs are the arguments of askUserQuestion.
type AskUserArgs struct {
	Question     string   `json:"question" jsonschema_description:"Short and specific natural-language question for the user"`
	QuestionType string   `json:"question_type,omitempty" jsonschema:"enum=single_choice,enum=multi_choice,enum=boolean,default=single_choice" jsonschema_description:"Kind of answer expected"`
	Options      []string `json:"options,omitempty" jsonschema_description:"Candidate answers; required for single_choice and multi_choice"`
}

// NewAskUserTool returns the clarification question tool.
func NewAskUserTool() (Tool, error) {
	return NewTypedTool(AskUserName,
		"Ask the user a structured clarification question (single choice, multiple choice or yes/no) when the request is ambiguous. "+
			"The result data contains a markdown block ready to show the user.",
		AskUser)
}

// AskUser builds a clarification question and its display block.
func AskUser(_ context.Context, args AskUserArgs) Envelope {
	qt := strings.ToLower(strings.TrimSpace(args.QuestionType))
	if qt == "" {
		qt = SingleChoice
	}
	if qt != SingleChoice && qt != MultiChoice && qt != Boolean {
		return Fail(AskUserName,
			"unsupported question type '%s'; use single_choice, multi_choice or boolean", args.QuestionType)
	}

	options := []string{}
	for _, o := range args.Options {
		if o = strings.TrimSpace(o); o != "" {
			options = append(options, o)
		}
	}
	if qt != Boolean && len(options) < 2 {
		return Fail(AskUserName, "single_choice and multi_choice questions need at least 2 non-empty options")
	}

	return Succeed(AskUserName, "clarification question generated", map[string]any{
		"question":      args.Question,
		"question_type": qt,
		"options":       options,
		"markdown":      questionMarkdown(args.Question, qt, options),
	})
}

func questionMarkdown(question, qt string, options []string) string {
	var b strings.Builder
	b.WriteString("To plan your schedule accurately I need to confirm one thing first:\n\n")
	fmt.Fprintf(&b, "**Question type**: %s\n\n", qt)
	fmt.Fprintf(&b, "**Question**: %s\n\n", question)

	var hint string
	switch qt {
	case Boolean:
		hint = "Please answer yes or no."
	case SingleChoice:
		hint = "Pick **one** option and reply with its letter."
	default:
		hint = "Pick **one or more** options and reply with their letters, for example A,C."
	}
	if qt != Boolean {
		b.WriteString("**Options:**\n\n")
		for i, o := range options {
			fmt.Fprintf(&b, "- %s. %s\n", optionLabel(i), o)
		}
		b.WriteString("\n")
	}
	b.WriteString(hint)
	b.WriteString("\n\nExample answers: `A` or `A,C` or `yes`.")
	return b.String()
}

func optionLabel(i int) string {
	if i < 26 {
		return string(rune('A' + i))
	}
	return fmt.Sprintf("Option %d", i+1)
}
