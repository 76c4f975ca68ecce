package pipeline

import (
	"fmt"
	"time"
)

// workflowContext is the transient per-run state: agent outputs, shared
// files, and a step log. It lives for exactly one Run or Resume call and
// is never shared across requests.
type workflowContext struct {
	memory      map[string]string
	globalFiles map[string]string
	logs        []string
}

func newWorkflowContext() *workflowContext {
	return &workflowContext{
		memory:      make(map[string]string),
		globalFiles: make(map[string]string),
	}
}

// restore installs a memory snapshot from a suspended execution. The maps
// are copied so the snapshot itself stays untouched.
func (c *workflowContext) restore(memory, globalFiles map[string]string) {
	for k, v := range memory {
		c.memory[k] = v
	}
	for k, v := range globalFiles {
		c.globalFiles[k] = v
	}
}

// snapshot returns a copy of memory safe to serialize into suspended state.
func (c *workflowContext) snapshot() map[string]string {
	out := make(map[string]string, len(c.memory))
	for k, v := range c.memory {
		out[k] = v
	}
	return out
}

func (c *workflowContext) remember(agentName, output string) {
	c.memory[agentName] = output
}

func (c *workflowContext) logf(format string, args ...any) {
	line := fmt.Sprintf("%s %s", time.Now().UTC().Format(time.RFC3339), fmt.Sprintf(format, args...))
	c.logs = append(c.logs, line)
}
