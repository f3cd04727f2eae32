package llm

import "encoding/json"

// Message is a provider-neutral chat message. Providers translate it into
// their own wire format.
type Message struct {
	// Role is one of "user", "assistant", or "tool".
	Role string `json:"role"`
	// Content is the text of the message. For tool messages it is the
	// serialized tool result.
	Content string `json:"content"`
	// ToolCalls are set on assistant messages that requested tool use.
	ToolCalls []ToolCall `json:"toolCalls,omitempty"`
	// ToolCallID links a tool message back to the call it answers.
	ToolCallID string `json:"toolCallId,omitempty"`
	// Name is the tool name on tool messages.
	Name string `json:"name,omitempty"`
}

// FunctionTool represents a function the model can call
type FunctionTool struct {
	// Type of tool (currently only "function" is supported)
	Type string `json:"type"`
	// Function definition
	Function FunctionToolDef `json:"function"`
}

// FunctionToolDef defines a callable function
type FunctionToolDef struct {
	// Name of the function
	Name string `json:"name"`
	// Description of what the function does
	Description string `json:"description"`
	// Parameters the function accepts (in JSON Schema format)
	Parameters interface{} `json:"parameters"`
}

// ToolCall is a tool invocation requested by the model.
type ToolCall struct {
	ID        string          `json:"id"`
	Name      string          `json:"name"`
	Arguments json.RawMessage `json:"arguments"`
}
