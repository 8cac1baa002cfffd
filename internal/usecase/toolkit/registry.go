// Package toolkit wires external capabilities (web search, SQL access)
// behind a uniform registry the chain and the agent invoke by name.
package toolkit

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/kailas-cloud/ragline/internal/domain/tool"
	"github.com/kailas-cloud/ragline/internal/metrics"
)

// DefaultInvokeTimeout bounds a single tool invocation.
const DefaultInvokeTimeout = 15 * time.Second

// Registry holds the available tools in registration order. Registration
// order is the selection priority: the first tool claiming a question wins.
// Register tools during startup wiring, before serving.
type Registry struct {
	tools   []tool.Tool
	byName  map[string]tool.Tool
	timeout time.Duration
	logger  *zap.Logger
}

// NewRegistry creates an empty registry. A non-positive timeout selects
// DefaultInvokeTimeout.
func NewRegistry(timeout time.Duration, logger *zap.Logger) *Registry {
	if timeout <= 0 {
		timeout = DefaultInvokeTimeout
	}
	return &Registry{byName: make(map[string]tool.Tool), timeout: timeout, logger: logger}
}

// Register adds a tool. Re-registering a name replaces the tool in place,
// keeping its priority slot.
func (r *Registry) Register(t tool.Tool) {
	name := t.Name()
	if _, ok := r.byName[name]; ok {
		for i := range r.tools {
			if r.tools[i].Name() == name {
				r.tools[i] = t
				break
			}
		}
	} else {
		r.tools = append(r.tools, t)
	}
	r.byName[name] = t
	r.logger.Info("Tool registered", zap.String("tool", name))
}

// Select returns the first registered tool that claims the question.
func (r *Registry) Select(question string) (tool.Tool, bool) {
	for _, t := range r.tools {
		if t.CanHandle(question) {
			return t, true
		}
	}
	return nil, false
}

// Invoke runs the named tool under the registry timeout. Failures travel
// back inside the Result envelope, never as a Go error.
func (r *Registry) Invoke(ctx context.Context, name, input string) tool.Result {
	t, ok := r.byName[name]
	if !ok {
		metrics.ToolInvocationsTotal.WithLabelValues(name, "error").Inc()
		return tool.Failure(name, "工具不存在: "+name)
	}

	runCtx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	payload, err := t.Run(runCtx, input)
	if err != nil {
		metrics.ToolInvocationsTotal.WithLabelValues(name, "error").Inc()
		r.logger.Warn("Tool invocation failed", zap.String("tool", name), zap.Error(err))
		return tool.Failure(name, err.Error())
	}
	metrics.ToolInvocationsTotal.WithLabelValues(name, "ok").Inc()
	r.logger.Debug("Tool invoked", zap.String("tool", name))
	return tool.Success(name, payload)
}

// Names lists registered tool names in priority order.
func (r *Registry) Names() []string {
	names := make([]string, len(r.tools))
	for i, t := range r.tools {
		names[i] = t.Name()
	}
	return names
}

// Descriptions renders the "- name: description" listing reasoning prompts
// embed so the model knows what it may call.
func (r *Registry) Descriptions() string {
	parts := make([]string, len(r.tools))
	for i, t := range r.tools {
		parts[i] = fmt.Sprintf("- %s: %s", t.Name(), t.Description())
	}
	return strings.Join(parts, "\n")
}
