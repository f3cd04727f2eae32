package claude

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"

	"github.com/lumen-search/backend/cfg/envs"
	"github.com/lumen-search/backend/pkg/services/llm"
)

const baseURL = "https://us-east5-aiplatform.googleapis.com/v1/projects/%s/locations/us-east5/publishers/anthropic/models/%s:streamRawPredict"

type Service struct{}

var _ llm.Provider = (*Service)(nil)

func NewService() *Service { return &Service{} }

type Message struct {
	Role    string    `json:"role"`
	Content []Content `json:"content"`
}

type Content struct {
	Type string `json:"type"`
	Text string `json:"text,omitempty"`

	// tool_use blocks (assistant requesting a call)
	ID    string          `json:"id,omitempty"`
	Name  string          `json:"name,omitempty"`
	Input json.RawMessage `json:"input,omitempty"`

	// tool_result blocks (user answering a call)
	ToolUseID string `json:"tool_use_id,omitempty"`
	Content   string `json:"content,omitempty"`
}

type Tool struct {
	Name        string      `json:"name"`
	Description string      `json:"description"`
	InputSchema interface{} `json:"input_schema"`
}

type Request struct {
	Messages         []Message `json:"messages"`
	System           string    `json:"system,omitempty"`
	Tools            []Tool    `json:"tools,omitempty"`
	MaxTokens        int       `json:"max_tokens"`
	Stream           bool      `json:"stream"`
	AnthropicVersion string    `json:"anthropic_version"`
}

// StreamEvent covers the subset of Anthropic stream events we consume.
type StreamEvent struct {
	Type  string `json:"type"`
	Index int    `json:"index"`
	Delta struct {
		Type        string `json:"type"`
		Text        string `json:"text"`
		PartialJSON string `json:"partial_json"`
		StopReason  string `json:"stop_reason"`
	} `json:"delta"`
	ContentBlock struct {
		Type string `json:"type"`
		ID   string `json:"id"`
		Name string `json:"name"`
	} `json:"content_block"`
	Message struct {
		Usage struct {
			InputTokens int `json:"input_tokens"`
		} `json:"usage"`
	} `json:"message"`
	Usage struct {
		OutputTokens int `json:"output_tokens"`
	} `json:"usage"`
}

func (s *Service) Prompt(ctx context.Context, prompt llm.ChatRequest, rsp *llm.StreamResponse) error {
	url := fmt.Sprintf(baseURL, envs.GCLOUD_PROJECT, prompt.Model)
	messages := make([]Message, 0, len(prompt.Messages))
	for _, m := range prompt.Messages {
		messages = append(messages, toAnthropicMessage(m))
	}
	maxTokens := prompt.MaxTokens
	if maxTokens == 0 {
		maxTokens = 8192
	}
	req := Request{
		Messages:         messages,
		System:           prompt.SystemPrompt,
		MaxTokens:        maxTokens,
		Stream:           true,
		AnthropicVersion: "vertex-2023-10-16",
	}
	for _, t := range prompt.Tools {
		req.Tools = append(req.Tools, Tool{
			Name:        t.Function.Name,
			Description: t.Function.Description,
			InputSchema: t.Function.Parameters,
		})
	}

	var buf bytes.Buffer
	err := json.NewEncoder(&buf).Encode(req)
	if err != nil {
		return fmt.Errorf("error encoding request: %w", err)
	}
	resp, err := llm.SendRequest(ctx, url, &buf)
	if err != nil {
		return fmt.Errorf("error sending request: %w", err)
	}

	tokenChan := make(chan llm.Token)
	rsp.Text = tokenChan

	go func() {
		defer resp.Body.Close()
		defer close(tokenChan)

		// Abandon the stream if the caller stops receiving; blocking on the
		// send would leak this goroutine and the connection.
		send := func(tok llm.Token) bool {
			select {
			case tokenChan <- tok:
				return true
			case <-ctx.Done():
				return false
			}
		}

		type partialCall struct {
			id   string
			name string
			args bytes.Buffer
		}
		partials := make(map[int]*partialCall)
		var order []int

		reader := bufio.NewReader(resp.Body)
		for {
			line, err := reader.ReadBytes('\n')
			if len(line) > 0 {
				line = bytes.TrimSpace(line)
				if len(line) == 0 || !bytes.HasPrefix(line, llm.PrefixData) {
					if err != nil {
						break
					}
					continue
				}
				data := bytes.TrimPrefix(line, llm.PrefixData)
				var event StreamEvent
				if err := json.Unmarshal(data, &event); err != nil {
					send(llm.Token{Err: fmt.Errorf("error parsing stream event: %w", err)})
					return
				}
				switch event.Type {
				case "message_start":
					rsp.InputTokens = event.Message.Usage.InputTokens
				case "content_block_start":
					if event.ContentBlock.Type == "tool_use" {
						partials[event.Index] = &partialCall{
							id:   event.ContentBlock.ID,
							name: event.ContentBlock.Name,
						}
						order = append(order, event.Index)
					}
				case "content_block_delta":
					switch event.Delta.Type {
					case "text_delta":
						if !send(llm.Token{Ok: event.Delta.Text}) {
							return
						}
					case "input_json_delta":
						if p := partials[event.Index]; p != nil {
							p.args.WriteString(event.Delta.PartialJSON)
						}
					}
				case "message_delta":
					rsp.OutputTokens = event.Usage.OutputTokens
				}
			}
			if err != nil {
				break
			}
		}

		for _, i := range order {
			p := partials[i]
			args := p.args.Bytes()
			if len(args) == 0 {
				args = []byte("{}")
			}
			rsp.ToolCalls = append(rsp.ToolCalls, llm.ToolCall{
				ID:        p.id,
				Name:      p.name,
				Arguments: json.RawMessage(args),
			})
		}
	}()

	return nil
}

// toAnthropicMessage maps the provider-neutral message shape onto Anthropic
// content blocks. Tool results ride as user messages.
func toAnthropicMessage(m llm.Message) Message {
	switch m.Role {
	case "tool":
		return Message{
			Role: "user",
			Content: []Content{{
				Type:      "tool_result",
				ToolUseID: m.ToolCallID,
				Content:   m.Content,
			}},
		}
	case "assistant":
		msg := Message{Role: "assistant"}
		if m.Content != "" {
			msg.Content = append(msg.Content, Content{Type: "text", Text: m.Content})
		}
		for _, tc := range m.ToolCalls {
			msg.Content = append(msg.Content, Content{
				Type:  "tool_use",
				ID:    tc.ID,
				Name:  tc.Name,
				Input: tc.Arguments,
			})
		}
		return msg
	default:
		return Message{
			Role:    "user",
			Content: []Content{{Type: "text", Text: m.Content}},
		}
	}
}
