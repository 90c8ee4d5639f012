package swarm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/hupe1980/agentswarm/core"
	"github.com/hupe1980/agentswarm/model"
)

// ErrUnknownIntent is returned when the classifier model answers with a tag
// that is not in its tag list.
var ErrUnknownIntent = errors.New("unknown intent")

// Classifier picks the entry agent for a conversation that has no active
// agent yet. A failed classification falls back to the default agent.
type Classifier interface {
	Classify(ctx context.Context, state *core.ConversationState) (string, error)
}

// IntentClassifier asks a model to pick one tag from a tag list. Tags are
// swarm member names, each with a short description of what it handles.
type IntentClassifier struct {
	llm     model.Model
	intents map[string]string
	prompt  string
}

// NewIntentClassifier builds a classifier over intents (agent name to
// description). A small, cheap model is enough.
func NewIntentClassifier(llm model.Model, intents map[string]string) (*IntentClassifier, error) {
	if len(intents) == 0 {
		return nil, errors.New("intent classifier needs at least one intent")
	}

	tags, err := json.Marshal(intents)
	if err != nil {
		return nil, fmt.Errorf("encode intents: %w", err)
	}

	return &IntentClassifier{
		llm:     llm,
		intents: intents,
		prompt: "You are a helpful assistant. You should choose one tag from the tag list:\n" +
			string(tags) + "\nJust reply with the chosen tag.",
	}, nil
}

// Agents returns the tags in sorted order.
func (c *IntentClassifier) Agents() []string {
	out := make([]string, 0, len(c.intents))
	for name := range c.intents {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

// Classify implements Classifier. Only the text of user and assistant
// messages is sent; tool traffic is left out.
func (c *IntentClassifier) Classify(ctx context.Context, state *core.ConversationState) (string, error) {
	msgs := []core.Message{core.NewSystemMessage(c.prompt)}
	for _, m := range state.Messages {
		if (m.Role == core.RoleUser || m.Role == core.RoleAssistant) && m.Content != "" {
			msgs = append(msgs, core.Message{Role: m.Role, Content: m.Content})
		}
	}

	resp, err := c.llm.Generate(ctx, model.Request{Messages: msgs})
	if err != nil {
		return "", err
	}
	if resp == nil {
		return "", errors.New("classifier model returned no response")
	}

	tag := strings.Trim(resp.Message.Content, " \t\r\n\"'`.")
	if _, ok := c.intents[tag]; !ok {
		return "", fmt.Errorf("%w: %q", ErrUnknownIntent, tag)
	}
	return tag, nil
}
