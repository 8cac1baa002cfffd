// Package tool defines the fixed capability surface every external tool
// implements, so new tools plug in without touching the callers.
package tool

import "context"

// Tool is one external capability the answering pipeline may call.
type Tool interface {
	// Name is the stable registry key, e.g. "websearch".
	Name() string
	// Description tells the model what the tool is good for.
	Description() string
	// CanHandle reports whether the tool claims the question. The
	// registry asks tools in priority order and picks the first claimant.
	CanHandle(question string) bool
	// Run executes the tool with a free-form input and returns its raw
	// payload. Callers wrap failures into a Result envelope.
	Run(ctx context.Context, input string) (string, error)
}

// Result is the uniform invocation envelope consumed by the chain and the
// agent. Failures travel as data, never as a raised error.
type Result struct {
	toolName string
	success  bool
	payload  string
	errMsg   string
}

// Success creates a successful Result carrying the tool payload.
func Success(toolName, payload string) Result {
	return Result{toolName: toolName, success: true, payload: payload}
}

// Failure creates a failed Result carrying the failure reason.
func Failure(toolName, errMsg string) Result {
	return Result{toolName: toolName, success: false, errMsg: errMsg}
}

// ToolName returns the name of the tool that produced the result.
func (r *Result) ToolName() string { return r.toolName }

// OK reports whether the invocation succeeded.
func (r *Result) OK() bool { return r.success }

// Payload returns the tool output. Empty when the invocation failed.
func (r *Result) Payload() string { return r.payload }

// Err returns the failure reason. Empty when the invocation succeeded.
func (r *Result) Err() string { return r.errMsg }

// Source builds the citation label answers cite for the result's tool.
func (r *Result) Source() string { return SourceID(r.toolName) }

// SourceID builds the citation label for a tool name.
func SourceID(name string) string { return "tool:" + name }
