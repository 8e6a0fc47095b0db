package agent

import (
	"strings"

	"github.com/corvid-labs/chatmux/pkg/model"
)

// overflowRule matches an error message when every one of its substrings is
// present, case-insensitively. Most rules are a single literal; a few
// source patterns have a variable middle section (e.g. a token count), so
// those are expressed as two substrings that must both appear.
type overflowRule struct {
	all []string
}

// overflowRules is the curated corpus of provider phrasings named in
// spec.md §4.F.4 and exercised by §8 property 5's fixture set (Anthropic,
// OpenAI, Google, xAI, Groq, OpenRouter, llama.cpp, LM Studio).
var overflowRules = []overflowRule{
	{all: []string{"prompt is too long"}},
	{all: []string{"exceeds the context window"}},
	{all: []string{"token count", "exceeds the maximum"}},
	{all: []string{"maximum prompt length"}},
	{all: []string{"reduce the length of the messages"}},
	{all: []string{"maximum context length is", "tokens"}},
	{all: []string{"exceeds the available context size"}},
	{all: []string{"greater than the context length"}},
	{all: []string{"context length exceeded"}},
	{all: []string{"too many tokens"}},
	{all: []string{"token limit exceeded"}},
	{all: []string{"400 status code (no body)"}},
	{all: []string{"413 status code (no body)"}},
}

// IsContextOverflow implements the isContextOverflow classifier (spec.md
// §4.F.4). contextWindow is 0 when the model's context window is unknown.
func IsContextOverflow(msg model.AssistantMessage, contextWindow int) bool {
	if msg.StopReason == model.StopReasonError {
		lower := strings.ToLower(msg.ErrorMessage)
		for _, rule := range overflowRules {
			matched := true
			for _, s := range rule.all {
				if !strings.Contains(lower, s) {
					matched = false
					break
				}
			}
			if matched {
				return true
			}
		}
		return false
	}

	if msg.StopReason == model.StopReasonStop && contextWindow > 0 {
		if msg.Usage.Input+msg.Usage.CacheRead > contextWindow {
			return true
		}
	}

	return false
}
