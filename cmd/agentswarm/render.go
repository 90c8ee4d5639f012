package main

import (
	"fmt"
	"io"
	"strings"

	"github.com/hupe1980/agentswarm/core"
)

const maxToolOutput = 200

// printMessages writes a human readable transcript. System directives are
// never persisted, so they do not show up here.
func printMessages(w io.Writer, msgs []core.Message) {
	for _, m := range msgs {
		switch m.Role {
		case core.RoleUser:
			fmt.Fprintf(w, "you> %s\n", m.Content)
		case core.RoleAssistant:
			if m.Content != "" {
				fmt.Fprintf(w, "%s> %s\n", agentLabel(m), m.Content)
			}
			for _, tc := range m.ToolCalls {
				fmt.Fprintf(w, "  %s calls %s(%s)\n", agentLabel(m), tc.Name, tc.Arguments)
			}
		case core.RoleTool:
			fmt.Fprintf(w, "  %s returned: %s\n", m.Name, truncate(m.Content, maxToolOutput))
		}
	}
}

func agentLabel(m core.Message) string {
	if m.Agent == "" {
		return "assistant"
	}
	return m.Agent
}

func truncate(s string, n int) string {
	s = strings.ReplaceAll(s, "\n", " ")
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
