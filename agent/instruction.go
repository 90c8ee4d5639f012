package agent

import (
	"github.com/hupe1980/agentswarm/core"
	"github.com/hupe1980/agentswarm/internal/util"
)

// Provider supplies dynamic instruction text at runtime, derived from the
// conversation state.
type Provider interface {
	Instruction(*core.ConversationState) (string, error)
}

// Func is a functional adapter to allow ordinary functions to be used as Providers.
type Func func(*core.ConversationState) (string, error)

// Instruction implements Provider.
func (f Func) Instruction(s *core.ConversationState) (string, error) { return f(s) }

// Instruction is either a static directive or a dynamic provider.
type Instruction struct {
	text     string
	provider Provider
}

// NewInstructionFromText creates an Instruction from a static string.
func NewInstructionFromText(text string) Instruction { return Instruction{text: text} }

// NewInstructionFromProvider creates an Instruction from a dynamic provider.
func NewInstructionFromProvider(p Provider) Instruction { return Instruction{provider: p} }

// NewInstructionFromFunc creates an Instruction from a function.
func NewInstructionFromFunc(f func(*core.ConversationState) (string, error)) Instruction {
	return Instruction{provider: Func(f)}
}

// NewInstructionFromTemplate renders text as a text/template with the
// conversation state as data, e.g. "{{if .PlanEnabled}}Follow the plan.{{end}}".
func NewInstructionFromTemplate(text string) Instruction {
	return NewInstructionFromFunc(func(s *core.ConversationState) (string, error) {
		return util.RenderTemplate(text, s)
	})
}

// IsStatic returns true if the instruction is backed by a static string.
func (i Instruction) IsStatic() bool { return i.provider == nil }

// Resolve returns the instruction text, invoking the provider if needed.
func (i Instruction) Resolve(s *core.ConversationState) (string, error) {
	if i.provider != nil {
		return i.provider.Instruction(s)
	}
	return i.text, nil
}
