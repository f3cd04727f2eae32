// Package assistant runs the chat pipeline: it routes a prompt to a model
// provider, loops over tool calls, streams the answer, and persists the turn.
package assistant

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/lumen-search/backend/pkg/services/db"
	"github.com/lumen-search/backend/pkg/services/db/convos"
	"github.com/lumen-search/backend/pkg/services/llm"
	"github.com/lumen-search/backend/pkg/services/tools"
	"github.com/lumen-search/backend/pkg/services/userdata"
	"github.com/lumen-search/backend/types/ty"
)

// maxToolRounds bounds the tool loop. After the last round the model is
// called once more without tools so it always produces a final answer.
const maxToolRounds = 5

const DefaultModel = llm.ModelGemini15Flash

const systemPrompt = `You are Lumen, a search assistant. Answer with current,
sourced information. Use the available tools to look things up rather than
guessing, and cite the sources the tools return. Keep answers concise.`

var (
	ErrUnknownModel   = errors.New("unknown model")
	ErrProRequired    = errors.New("model requires a pro subscription")
	ErrNoRequestsLeft = errors.New("monthly free request allowance exhausted")
)

type Service struct {
	sd        ty.ShutdownContext
	userData  *userdata.Service
	registry  *tools.Registry
	providers map[llm.ServiceName]llm.Provider
}

func NewService(sd ty.ShutdownContext, userData *userdata.Service, registry *tools.Registry, providers map[llm.ServiceName]llm.Provider) *Service {
	return &Service{sd: sd, userData: userData, registry: registry, providers: providers}
}

type Request struct {
	// UID is the authenticated Firebase user ID.
	UID string
	// ConversationID continues an existing conversation; zero starts one.
	ConversationID int64
	Prompt         string
	Model          llm.ServiceName
}

type Result struct {
	ConversationID int64
	Model          llm.ServiceName
	Response       string
	InputTokens    int
	OutputTokens   int
	ToolCalls      int
}

// Chat runs one assistant turn, writing answer text to w as it streams.
func (s *Service) Chat(ctx context.Context, req Request, w io.Writer) (Result, error) {
	var res Result
	if strings.TrimSpace(req.Prompt) == "" {
		return res, fmt.Errorf("prompt is required")
	}
	model := req.Model
	if model == "" {
		model = DefaultModel
	}
	if !model.IsChatModel() {
		return res, fmt.Errorf("%w: %s", ErrUnknownModel, model)
	}
	provider, ok := s.providers[model]
	if !ok {
		return res, fmt.Errorf("%w: %s", ErrUnknownModel, model)
	}
	res.Model = model

	data, err := s.userData.Get(ctx, req.UID)
	if err != nil {
		return res, err
	}
	if model.Pro() && !data.Pro {
		return res, fmt.Errorf("%w: %s", ErrProRequired, model)
	}
	if !data.Pro && data.FreeRequestsLeft <= 0 {
		return res, ErrNoRequestsLeft
	}

	convo, history, err := s.loadConversation(ctx, data.User.ID, req)
	if err != nil {
		return res, err
	}
	res.ConversationID = convo.ID

	userMsg := convos.Message{ConversationID: convo.ID, Role: "user", Content: req.Prompt}
	if err := userMsg.Insert(ctx, db.D); err != nil {
		return res, err
	}

	msgs := append(history, llm.Message{Role: "user", Content: req.Prompt})
	defs := s.registry.Definitions(data.Pro)
	var answer strings.Builder
	log := slog.With("uid", req.UID, "model", model, "conversation", convo.ID)

	for round := 0; ; round++ {
		chatReq := llm.ChatRequest{
			Model:        model,
			SystemPrompt: systemPrompt,
			Messages:     msgs,
			Tools:        defs,
		}
		if round >= maxToolRounds {
			// Force a final answer.
			chatReq.Tools = nil
		}
		var rsp llm.StreamResponse
		if err := provider.Prompt(ctx, chatReq, &rsp); err != nil {
			return res, fmt.Errorf("model call failed: %w", err)
		}
		var roundText strings.Builder
		for tok := range rsp.Text {
			if tok.Err != nil {
				return res, fmt.Errorf("stream error: %w", tok.Err)
			}
			roundText.WriteString(tok.Ok)
			answer.WriteString(tok.Ok)
			if _, err := io.WriteString(w, tok.Ok); err != nil {
				// Client gone mid-stream. Drain so the provider goroutine can
				// finish and release its connection.
				go drain(rsp.Text)
				return res, err
			}
		}
		if rsp.OutputTokens == 0 && roundText.Len() > 0 {
			// Some providers omit usage on partial turns.
			rsp.OutputTokens = llm.EstimateTokens(roundText.String())
		}
		res.InputTokens += rsp.InputTokens
		res.OutputTokens += rsp.OutputTokens

		if len(rsp.ToolCalls) == 0 {
			break
		}
		if round >= maxToolRounds {
			// The model requested tools on the forced final round; stop anyway.
			log.Warn("tool loop hit round limit", "requested", len(rsp.ToolCalls))
			break
		}
		res.ToolCalls += len(rsp.ToolCalls)
		msgs = append(msgs, llm.Message{
			Role:      "assistant",
			Content:   roundText.String(),
			ToolCalls: rsp.ToolCalls,
		})
		for _, call := range rsp.ToolCalls {
			output := s.runTool(ctx, log, data.User.ID, call, data.Pro)
			msgs = append(msgs, llm.Message{
				Role:       "tool",
				Content:    output,
				ToolCallID: call.ID,
				Name:       call.Name,
			})
			toolMsg := convos.Message{
				ConversationID: convo.ID,
				Role:           "tool",
				Content:        output,
				ToolName:       call.Name,
			}
			if err := toolMsg.Insert(ctx, db.D); err != nil {
				log.Error("failed to persist tool message", "error", err)
			}
		}
	}
	res.Response = answer.String()

	assistantMsg := convos.Message{
		ConversationID: convo.ID,
		Role:           "assistant",
		Content:        res.Response,
		Model:          model.String(),
	}
	if err := assistantMsg.Insert(ctx, db.D); err != nil {
		return res, err
	}
	if err := convo.Touch(ctx, db.D); err != nil {
		log.Error("failed to touch conversation", "error", err)
	}

	s.recordReceipt(data.User.ID, res)
	log.Debug("chat turn complete",
		"input_tokens", res.InputTokens,
		"output_tokens", res.OutputTokens,
		"tool_calls", res.ToolCalls,
	)
	return res, nil
}

// drain consumes a stream the caller abandoned.
func drain(ch <-chan llm.Token) {
	for range ch {
	}
}

// runTool dispatches a tool call, mapping failures to text the model can
// recover from. A broken tool shouldn't kill the whole turn.
func (s *Service) runTool(ctx context.Context, log *slog.Logger, userID int64, call llm.ToolCall, pro bool) string {
	start := time.Now()
	output, err := s.registry.Dispatch(ctx, call, pro)
	if err != nil {
		log.Error("tool call failed", "tool", call.Name, "error", err)
		return fmt.Sprintf("Error: %v", err)
	}
	log.Debug("tool call", "tool", call.Name, "duration", time.Since(start))
	if tool, ok := s.registry.Lookup(call.Name); ok {
		s.recordToolReceipt(userID, tool.Service(), call)
	}
	return output
}

func (s *Service) loadConversation(ctx context.Context, userID int64, req Request) (convos.Conversation, []llm.Message, error) {
	if req.ConversationID == 0 {
		convo := convos.Conversation{UserID: userID, Title: titleFromPrompt(req.Prompt)}
		if err := convo.Insert(ctx, db.D); err != nil {
			return convo, nil, err
		}
		return convo, nil, nil
	}
	convo, err := convos.GetByID(ctx, db.Read(), userID, req.ConversationID)
	if err == sql.ErrNoRows {
		return convo, nil, fmt.Errorf("conversation %d not found", req.ConversationID)
	} else if err != nil {
		return convo, nil, err
	}
	stored, err := convos.Messages(ctx, db.Read(), convo.ID)
	if err != nil {
		return convo, nil, err
	}
	// Replay only the user/assistant text. Tool internals from previous turns
	// aren't useful context and bloat the prompt.
	var history []llm.Message
	for _, m := range stored {
		if m.Role != "user" && m.Role != "assistant" {
			continue
		}
		if m.Content == "" {
			continue
		}
		history = append(history, llm.Message{Role: m.Role, Content: m.Content})
	}
	return convo, history, nil
}

func titleFromPrompt(prompt string) string {
	title := strings.Join(strings.Fields(prompt), " ")
	runes := []rune(title)
	if len(runes) > 80 {
		title = string(runes[:80])
	}
	return title
}

func (s *Service) recordReceipt(userID int64, res Result) {
	receipt := db.Receipt{
		UserID:       userID,
		ServiceName:  res.Model,
		InputTokens:  int64(res.InputTokens),
		OutputTokens: int64(res.OutputTokens),
		TotalTokens:  int64(res.InputTokens + res.OutputTokens),
		NumToolCalls: int64(res.ToolCalls),
		NumRequests:  1,
	}
	s.sd.Run(func(ctx context.Context) {
		if err := receipt.Insert(ctx); err != nil {
			slog.Error("failed to insert chat receipt", "error", err, "user", userID)
		}
	})
}

func (s *Service) recordToolReceipt(userID int64, service llm.ServiceName, call llm.ToolCall) {
	metadata, _ := json.Marshal(map[string]string{"tool": call.Name})
	receipt := db.Receipt{
		UserID:       userID,
		ServiceName:  service,
		NumToolCalls: 1,
		Metadata:     metadata,
	}
	if service == llm.ToolWebSearch {
		receipt.NumSearches = 1
	}
	s.sd.Run(func(ctx context.Context) {
		if err := receipt.Insert(ctx); err != nil {
			slog.Error("failed to insert tool receipt", "error", err, "tool", call.Name)
		}
	})
}
