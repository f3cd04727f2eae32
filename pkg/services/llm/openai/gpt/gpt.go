package gpt

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/lumen-search/backend/cfg/secr"
	"github.com/lumen-search/backend/pkg/services/llm"
)

const baseURL = "https://api.openai.com/v1/chat/completions"

type Service struct{}

var _ llm.Provider = (*Service)(nil)

func NewService() *Service { return &Service{} }

type Message struct {
	Role       string     `json:"role"`
	Content    string     `json:"content,omitempty"`
	ToolCalls  []ToolCall `json:"tool_calls,omitempty"`
	ToolCallID string     `json:"tool_call_id,omitempty"`
	Name       string     `json:"name,omitempty"`
}

type ToolCall struct {
	ID       string           `json:"id"`
	Type     string           `json:"type"`
	Function ToolCallFunction `json:"function"`
}

type ToolCallFunction struct {
	Name      string `json:"name"`
	Arguments string `json:"arguments"`
}

// Request represents a chat completion request to the OpenAI API
//
// https://platform.openai.com/docs/api-reference/chat/create
type Request struct {
	Model               string             `json:"model"`
	Messages            []Message          `json:"messages"`
	Stream              bool               `json:"stream,omitempty"`
	StreamOptions       *StreamOptions     `json:"stream_options,omitempty"`
	MaxCompletionTokens int                `json:"max_completion_tokens,omitempty"`
	Tools               []llm.FunctionTool `json:"tools,omitempty"`
}

// StreamOptions configures streaming response behavior
type StreamOptions struct {
	// Whether to include token usage information in stream
	IncludeUsage bool `json:"include_usage"`
}

// StreamResponse represents a streamed chunk of a chat completion response
type StreamResponse struct {
	ID      string `json:"id"`
	Object  string `json:"object"`
	Created int64  `json:"created"`
	Model   string `json:"model"`
	Choices []struct {
		Index int `json:"index"`
		Delta struct {
			Content   string `json:"content"`
			ToolCalls []struct {
				Index    int    `json:"index"`
				ID       string `json:"id"`
				Type     string `json:"type"`
				Function struct {
					Name      string `json:"name"`
					Arguments string `json:"arguments"`
				} `json:"function"`
			} `json:"tool_calls"`
		} `json:"delta"`
		FinishReason string `json:"finish_reason"`
	} `json:"choices"`
	Usage *struct {
		PromptTokens     int `json:"prompt_tokens"`
		CompletionTokens int `json:"completion_tokens"`
		TotalTokens      int `json:"total_tokens"`
	} `json:"usage,omitempty"`
}

func (s *Service) Prompt(ctx context.Context, prompt llm.ChatRequest, rsp *llm.StreamResponse) error {
	if prompt.Model == "" {
		return fmt.Errorf("model is required")
	}
	messages := make([]Message, 0, len(prompt.Messages)+1)
	if prompt.SystemPrompt != "" {
		messages = append(messages, Message{Role: "system", Content: prompt.SystemPrompt})
	}
	for _, m := range prompt.Messages {
		msg := Message{
			Role:       m.Role,
			Content:    m.Content,
			ToolCallID: m.ToolCallID,
			Name:       m.Name,
		}
		for _, tc := range m.ToolCalls {
			msg.ToolCalls = append(msg.ToolCalls, ToolCall{
				ID:   tc.ID,
				Type: "function",
				Function: ToolCallFunction{
					Name:      tc.Name,
					Arguments: string(tc.Arguments),
				},
			})
		}
		messages = append(messages, msg)
	}
	maxTokens := prompt.MaxTokens
	if maxTokens == 0 {
		maxTokens = 8192
	}
	reqBody := Request{
		Model:               string(prompt.Model),
		Messages:            messages,
		Stream:              true,
		StreamOptions:       &StreamOptions{IncludeUsage: true},
		MaxCompletionTokens: maxTokens,
		Tools:               prompt.Tools,
	}

	var buf bytes.Buffer
	err := json.NewEncoder(&buf).Encode(reqBody)
	if err != nil {
		return fmt.Errorf("error encoding request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, "POST", baseURL, &buf)
	if err != nil {
		return fmt.Errorf("error creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+secr.OPENAI_LLM_API_KEY.String())
	resp, err := llm.HttpClient.Do(req)
	if err != nil {
		return fmt.Errorf("error sending request: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		defer resp.Body.Close()
		body, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("error response from API: status %d, body: %s", resp.StatusCode, string(body))
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

		// Tool call fragments arrive as deltas keyed by index.
		type partialCall struct {
			id   string
			name string
			args bytes.Buffer
		}
		partials := make(map[int]*partialCall)

		scanner := bufio.NewScanner(resp.Body)
		for scanner.Scan() {
			line := scanner.Bytes()
			if !bytes.HasPrefix(line, llm.PrefixData) {
				continue
			}
			data := bytes.TrimPrefix(line, llm.PrefixData)
			if bytes.Equal(data, llm.TokenDone) {
				break
			}

			var streamResp StreamResponse
			if err := json.Unmarshal(data, &streamResp); err != nil {
				send(llm.Token{Err: fmt.Errorf("error parsing stream response: %w", err)})
				return
			}

			for _, choice := range streamResp.Choices {
				if choice.Delta.Content != "" {
					if !send(llm.Token{Ok: choice.Delta.Content}) {
						return
					}
				}
				for _, tc := range choice.Delta.ToolCalls {
					p, ok := partials[tc.Index]
					if !ok {
						p = &partialCall{}
						partials[tc.Index] = p
					}
					if tc.ID != "" {
						p.id = tc.ID
					}
					if tc.Function.Name != "" {
						p.name = tc.Function.Name
					}
					p.args.WriteString(tc.Function.Arguments)
				}
			}
			if streamResp.Usage != nil {
				rsp.InputTokens = streamResp.Usage.PromptTokens
				rsp.OutputTokens = streamResp.Usage.CompletionTokens
			}
		}

		if err := scanner.Err(); err != nil {
			send(llm.Token{Err: fmt.Errorf("error reading stream: %w", err)})
			return
		}

		for i := 0; i < len(partials); i++ {
			p := partials[i]
			if p == nil {
				continue
			}
			rsp.ToolCalls = append(rsp.ToolCalls, llm.ToolCall{
				ID:        p.id,
				Name:      p.name,
				Arguments: json.RawMessage(p.args.Bytes()),
			})
		}
	}()

	return nil
}
