package llm

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"unicode/utf8"

	"github.com/lumen-search/backend/types/ty"
	"golang.org/x/oauth2/google"
)

type StreamResponse struct {
	Text         <-chan Token
	InputTokens  int
	OutputTokens int
	// ToolCalls are populated by the provider before Text is closed.
	// Callers must drain Text before reading them.
	ToolCalls []ToolCall
}

type Token = ty.Result[string]

var (
	PrefixData = []byte("data: ")
	TokenDone  = []byte("[DONE]")
)

// ChatRequest is a provider-neutral chat turn: full message history plus the
// tool definitions the model may call this round.
type ChatRequest struct {
	Model        ServiceName
	SystemPrompt string
	Messages     []Message
	Tools        []FunctionTool
	MaxTokens    int
}

// Provider streams one model turn.
type Provider interface {
	Prompt(ctx context.Context, req ChatRequest, rsp *StreamResponse) error
}

// EstimateTokens estimates the number of tokens in a string.
// This is a very simplified approach and might not be accurate for all models.
func EstimateTokens(text string) int { return utf8.RuneCountInString(text) / 4 }

func GetAccessToken(ctx context.Context) (string, error) {
	tokenSource, err := google.DefaultTokenSource(ctx, "https://www.googleapis.com/auth/cloud-platform")
	if err != nil {
		return "", fmt.Errorf("error getting token source: %w", err)
	}
	token, err := tokenSource.Token()
	if err != nil {
		return "", fmt.Errorf("error getting token: %w", err)
	}
	return token.AccessToken, nil
}

// SendRequest posts a JSON body to a Vertex AI endpoint with an OAuth token.
func SendRequest(ctx context.Context, url string, body io.Reader) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, "POST", url, body)
	if err != nil {
		return nil, fmt.Errorf("error creating request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json; charset=utf-8")

	accessToken, err := GetAccessToken(ctx)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+accessToken)

	resp, err := HttpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("error sending request: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		resp.Body.Close()
		return nil, fmt.Errorf("error response from API: status %d, body: %s", resp.StatusCode, string(body))
	}

	return resp, nil
}
