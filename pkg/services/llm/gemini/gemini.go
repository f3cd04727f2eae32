package gemini

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"

	"github.com/lumen-search/backend/cfg/envs"
	"github.com/lumen-search/backend/pkg/services/llm"
)

const baseURL = "https://us-central1-aiplatform.googleapis.com/v1/projects/%s/locations/us-central1/publishers/google/models/%s:streamGenerateContent"

type Service struct{}

var _ llm.Provider = (*Service)(nil)

func NewService() *Service { return &Service{} }

type Part struct {
	Text             string            `json:"text,omitempty"`
	FunctionCall     *FunctionCall     `json:"functionCall,omitempty"`
	FunctionResponse *FunctionResponse `json:"functionResponse,omitempty"`
}

type FunctionCall struct {
	Name string          `json:"name"`
	Args json.RawMessage `json:"args"`
}

type FunctionResponse struct {
	Name     string         `json:"name"`
	Response map[string]any `json:"response"`
}

type Content struct {
	Role  string `json:"role"`
	Parts []Part `json:"parts"`
}

type FunctionDeclaration struct {
	Name        string      `json:"name"`
	Description string      `json:"description"`
	Parameters  interface{} `json:"parameters"`
}

type ToolDecl struct {
	FunctionDeclarations []FunctionDeclaration `json:"functionDeclarations"`
}

type Request struct {
	Contents          []Content  `json:"contents"`
	SystemInstruction *Content   `json:"systemInstruction,omitempty"`
	Tools             []ToolDecl `json:"tools,omitempty"`
}

type Response struct {
	Candidates    []Candidate `json:"candidates"`
	UsageMetadata struct {
		PromptTokenCount     int `json:"promptTokenCount"`
		CandidatesTokenCount int `json:"candidatesTokenCount"`
		TotalTokenCount      int `json:"totalTokenCount"`
	} `json:"usageMetadata,omitempty"`
	ModelVersion string `json:"modelVersion"`
}

type Candidate struct {
	Content struct {
		Role  string `json:"role"`
		Parts []Part `json:"parts"`
	} `json:"content"`
	FinishReason string `json:"finishReason,omitempty"`
}

func (s *Service) Prompt(ctx context.Context, prompt llm.ChatRequest, rsp *llm.StreamResponse) error {
	requestURL := fmt.Sprintf(baseURL, envs.GCLOUD_PROJECT, prompt.Model)
	req := Request{Contents: toContents(prompt.Messages)}
	if prompt.SystemPrompt != "" {
		req.SystemInstruction = &Content{Parts: []Part{{Text: prompt.SystemPrompt}}}
	}
	if len(prompt.Tools) > 0 {
		decl := ToolDecl{}
		for _, t := range prompt.Tools {
			decl.FunctionDeclarations = append(decl.FunctionDeclarations, FunctionDeclaration{
				Name:        t.Function.Name,
				Description: t.Function.Description,
				Parameters:  t.Function.Parameters,
			})
		}
		req.Tools = []ToolDecl{decl}
	}

	var buf bytes.Buffer
	err := json.NewEncoder(&buf).Encode(req)
	if err != nil {
		return fmt.Errorf("error encoding request: %w", err)
	}

	resp, err := llm.SendRequest(ctx, requestURL, &buf)
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

		decoder := json.NewDecoder(resp.Body)
		var totalInputTokens, totalOutputTokens int

		// The stream is one long JSON array of Response objects.
		_, err := decoder.Token()
		if err != nil {
			send(llm.Token{Err: fmt.Errorf("error reading opening bracket: %w", err)})
			return
		}

		for decoder.More() {
			var response Response
			if err := decoder.Decode(&response); err != nil {
				send(llm.Token{Err: fmt.Errorf("error decoding JSON: %w", err)})
				return
			}

			for _, candidate := range response.Candidates {
				for _, part := range candidate.Content.Parts {
					if part.Text != "" {
						if !send(llm.Token{Ok: part.Text}) {
							return
						}
					}
					if part.FunctionCall != nil {
						args := part.FunctionCall.Args
						if len(args) == 0 {
							args = json.RawMessage("{}")
						}
						rsp.ToolCalls = append(rsp.ToolCalls, llm.ToolCall{
							ID:        fmt.Sprintf("call-%d", len(rsp.ToolCalls)),
							Name:      part.FunctionCall.Name,
							Arguments: args,
						})
					}
				}
			}

			if response.UsageMetadata.PromptTokenCount > 0 {
				totalInputTokens = response.UsageMetadata.PromptTokenCount
				totalOutputTokens = response.UsageMetadata.CandidatesTokenCount
			}
		}

		if _, err = decoder.Token(); err != nil {
			send(llm.Token{Err: fmt.Errorf("error reading closing bracket: %w", err)})
			return
		}

		rsp.InputTokens = totalInputTokens
		rsp.OutputTokens = totalOutputTokens
	}()

	return nil
}

// toContents maps neutral messages onto Gemini contents. Gemini has no tool
// role; tool results become user-role functionResponse parts.
func toContents(messages []llm.Message) []Content {
	contents := make([]Content, 0, len(messages))
	for _, m := range messages {
		switch m.Role {
		case "assistant":
			c := Content{Role: "model"}
			if m.Content != "" {
				c.Parts = append(c.Parts, Part{Text: m.Content})
			}
			for _, tc := range m.ToolCalls {
				c.Parts = append(c.Parts, Part{FunctionCall: &FunctionCall{
					Name: tc.Name,
					Args: tc.Arguments,
				}})
			}
			contents = append(contents, c)
		case "tool":
			contents = append(contents, Content{
				Role: "user",
				Parts: []Part{{FunctionResponse: &FunctionResponse{
					Name:     m.Name,
					Response: map[string]any{"content": m.Content},
				}}},
			})
		default:
			contents = append(contents, Content{Role: "user", Parts: []Part{{Text: m.Content}}})
		}
	}
	return contents
}
