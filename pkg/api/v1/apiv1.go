package api

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/lumen-search/backend/pkg/core"
	"github.com/lumen-search/backend/pkg/services/assistant"
	"github.com/lumen-search/backend/pkg/services/db"
	"github.com/lumen-search/backend/pkg/services/db/convos"
	"github.com/lumen-search/backend/pkg/services/db/users"
	"github.com/lumen-search/backend/pkg/services/llm"
	"github.com/lumen-search/backend/pkg/services/search"
	"github.com/lumen-search/backend/pkg/services/userdata"
	"github.com/lumen-search/backend/pkg/services/voice"
	"github.com/lumen-search/backend/types/rp"
	"github.com/lumen-search/backend/types/rq"
	"github.com/lumen-search/backend/types/ty"
)

func (s *Service) Routes(mux *http.ServeMux) {
	mux.HandleFunc("POST /v1/chat", s.Chat)
	mux.HandleFunc("GET /v1/pro-status", s.ProStatus)
	mux.HandleFunc("GET /v1/conversations", s.GetConversations)
	mux.HandleFunc("GET /v1/conversations/{id}/messages", s.GetMessages)
	mux.HandleFunc("POST /v1/web-search", s.WebSearch)
	mux.HandleFunc("POST /v1/voice/tts", s.TextToSpeech)
	mux.HandleFunc("GET /v1/voice/signed-url", s.VoiceSignedURL)
	mux.HandleFunc("POST /v1/feedback", s.Feedback)
}

type Service struct {
	sd           ty.ShutdownContext
	sc           *core.Client
	assistant    *assistant.Service
	userData     *userdata.Service
	searchClient *search.Client
	voice        *voice.Service
}

type ServiceClients struct {
	Assistant    *assistant.Service
	UserData     *userdata.Service
	SearchClient *search.Client
	Voice        *voice.Service
}

func NewService(sd ty.ShutdownContext, sc *core.Client, setup ServiceClients) *Service {
	return &Service{
		sd:           sd,
		sc:           sc,
		assistant:    setup.Assistant,
		userData:     setup.UserData,
		searchClient: setup.SearchClient,
		voice:        setup.Voice,
	}
}

// - MARK: chat

// sseWriter frames each write as a server-sent event data line and flushes
// so tokens reach the client as they stream.
type sseWriter struct {
	w     http.ResponseWriter
	f     http.Flusher
	wrote bool
}

func (s *sseWriter) Write(p []byte) (int, error) {
	chunk, err := json.Marshal(map[string]string{"text": string(p)})
	if err != nil {
		return 0, err
	}
	if _, err := fmt.Fprintf(s.w, "data: %s\n\n", chunk); err != nil {
		return 0, err
	}
	s.wrote = true
	if s.f != nil {
		s.f.Flush()
	}
	return len(p), nil
}

func (s *Service) Chat(w http.ResponseWriter, r *http.Request) {
	tok, err := s.sc.Auth.VerifyToken(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusUnauthorized)
		return
	}
	var bod rq.ChatV1
	if err := json.NewDecoder(r.Body).Decode(&bod); err != nil {
		if err == io.EOF {
			http.Error(w, "request body is empty", http.StatusBadRequest)
		} else {
			http.Error(w, err.Error(), http.StatusBadRequest)
		}
		return
	}
	if err := tok.Check(bod.UserID); err != nil {
		http.Error(w, err.Error(), http.StatusUnauthorized)
		return
	}
	log := slog.With("handler", "chat", "uid", bod.UserID, "model", bod.Model)

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	flusher, _ := w.(http.Flusher)
	out := &sseWriter{w: w, f: flusher}

	res, err := s.assistant.Chat(r.Context(), assistant.Request{
		UID:            bod.UserID,
		ConversationID: bod.ConversationID,
		Prompt:         bod.Prompt,
		Model:          bod.Model,
	}, out)
	if err != nil {
		// If tokens already went out we can only report the error in-stream.
		log.Error("chat failed", "error", err)
		if !out.wrote {
			http.Error(w, err.Error(), chatErrorStatus(err))
			return
		}
		fmt.Fprintf(w, "data: {\"error\": %q}\n\n", err.Error())
		if flusher != nil {
			flusher.Flush()
		}
		return
	}
	final, _ := json.Marshal(map[string]any{
		"done":           true,
		"conversationID": res.ConversationID,
		"model":          res.Model,
		"toolCalls":      res.ToolCalls,
	})
	fmt.Fprintf(w, "data: %s\n\ndata: [DONE]\n\n", final)
	if flusher != nil {
		flusher.Flush()
	}
}

func chatErrorStatus(err error) int {
	switch {
	case errors.Is(err, assistant.ErrProRequired):
		return http.StatusForbidden
	case errors.Is(err, assistant.ErrNoRequestsLeft):
		return http.StatusTooManyRequests
	case errors.Is(err, assistant.ErrUnknownModel):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

// - MARK: pro status

func (s *Service) ProStatus(w http.ResponseWriter, r *http.Request) {
	tok, err := s.sc.Auth.VerifyToken(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusUnauthorized)
		return
	}
	var bod rq.ProStatusV1
	if err := bod.FromQuery(r); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if err := tok.Check(bod.UserID); err != nil {
		http.Error(w, err.Error(), http.StatusUnauthorized)
		return
	}
	data, err := s.userData.Get(r.Context(), bod.UserID)
	if err != nil {
		slog.Error("failed to get user data", "uid", bod.UserID, "error", err)
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	if bod.DeviceID != "" {
		s.registerDevice(data.User.ID, bod)
	}
	if bod.Email != "" && data.User.Email.String == "" {
		s.recordEmail(bod)
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(rp.ProStatusFromUserData(data))
}

// recordEmail backfills the email for users auto-created without one.
func (s *Service) recordEmail(bod rq.ProStatusV1) {
	s.sd.Run(func(ctx context.Context) {
		if err := users.SetEmail(ctx, db.D, bod.UserID, bod.Email); err != nil {
			slog.Error("failed to set user email", "error", err, "uid", bod.UserID)
		}
	})
}

// registerDevice records the client device off the request path.
func (s *Service) registerDevice(userID int64, bod rq.ProStatusV1) {
	s.sd.Run(func(ctx context.Context) {
		device := users.UserDevice{
			UserID:    userID,
			DeviceUID: bod.DeviceID,
			Version:   bod.Version,
		}
		exists, err := device.Exists(ctx, db.D)
		if err != nil {
			slog.Error("failed to check device", "error", err, "device", bod.DeviceID)
			return
		}
		if exists {
			return
		}
		if err := device.Insert(ctx, db.D); err != nil {
			slog.Error("failed to insert device", "error", err, "device", bod.DeviceID)
		}
	})
}

// - MARK: conversations

func (s *Service) GetConversations(w http.ResponseWriter, r *http.Request) {
	tok, err := s.sc.Auth.VerifyToken(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusUnauthorized)
		return
	}
	var bod rq.ConversationsV1
	if err := bod.FromQuery(r); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if err := tok.Check(bod.UserID); err != nil {
		http.Error(w, err.Error(), http.StatusUnauthorized)
		return
	}
	ctx := r.Context()
	user := users.User{UID: bod.UserID}
	if err := user.GetByUID(ctx, db.D); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	list, hasMore, err := convos.List(ctx, db.Read(), user.ID, bod.Limit, bod.Cursor)
	if err != nil {
		slog.Error("failed to list conversations", "uid", bod.UserID, "error", err)
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	rsp := rp.ConversationsV1{HasMore: hasMore}
	for _, c := range list {
		rsp.Conversations = append(rsp.Conversations, rp.ConversationV1{
			ID:        c.ID,
			Title:     c.Title,
			CreatedAt: c.CreatedAt,
			UpdatedAt: c.UpdatedAt,
		})
	}
	if hasMore && len(list) > 0 {
		rsp.NextCursor = list[len(list)-1].ID
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(rsp)
}

func (s *Service) GetMessages(w http.ResponseWriter, r *http.Request) {
	tok, err := s.sc.Auth.VerifyToken(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusUnauthorized)
		return
	}
	uid := r.URL.Query().Get("userID")
	if err := tok.Check(uid); err != nil {
		http.Error(w, err.Error(), http.StatusUnauthorized)
		return
	}
	convoID, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil {
		http.Error(w, "invalid conversation id", http.StatusBadRequest)
		return
	}
	ctx := r.Context()
	user := users.User{UID: uid}
	if err := user.GetByUID(ctx, db.D); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	// Ownership check: the conversation must belong to the caller.
	convo, err := convos.GetByID(ctx, db.Read(), user.ID, convoID)
	if err == sql.ErrNoRows {
		http.Error(w, "conversation not found", http.StatusNotFound)
		return
	} else if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	msgs, err := convos.Messages(ctx, db.Read(), convo.ID)
	if err != nil {
		slog.Error("failed to get messages", "conversation", convo.ID, "error", err)
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	rsp := rp.MessagesV1{ConversationID: convo.ID}
	for _, m := range msgs {
		rsp.Messages = append(rsp.Messages, rp.MessageV1{
			ID:        m.ID,
			Role:      m.Role,
			Content:   m.Content,
			Model:     m.Model,
			ToolName:  m.ToolName,
			CreatedAt: m.CreatedAt,
		})
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(rsp)
}

// - MARK: web search

func (s *Service) WebSearch(w http.ResponseWriter, r *http.Request) {
	tok, err := s.sc.Auth.VerifyToken(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusUnauthorized)
		return
	}
	var bod rq.SearchV1
	if err := json.NewDecoder(r.Body).Decode(&bod); err != nil {
		if err == io.EOF {
			http.Error(w, "request body is empty", http.StatusBadRequest)
		} else {
			http.Error(w, err.Error(), http.StatusBadRequest)
		}
		return
	}
	if err := tok.Check(bod.UserID); err != nil {
		http.Error(w, err.Error(), http.StatusUnauthorized)
		return
	}
	if bod.Query == "" {
		http.Error(w, "query is required", http.StatusBadRequest)
		return
	}
	if bod.NumResults == 0 {
		bod.NumResults = 5
	}
	ctx := r.Context()
	data, err := s.userData.Get(ctx, bod.UserID)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	if !data.Pro && data.FreeRequestsLeft <= 0 {
		http.Error(w, "monthly free request allowance exhausted", http.StatusTooManyRequests)
		return
	}
	results, engine, err := s.searchClient.Search(ctx, search.Request{
		Query:      bod.Query,
		NumResults: bod.NumResults,
	})
	if err != nil {
		slog.Error("web search failed", "uid", bod.UserID, "error", err)
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	receipt := db.Receipt{
		UserID:      data.User.ID,
		ServiceName: engine,
		NumSearches: 1,
		NumRequests: 1,
	}
	s.sd.Run(func(ctx context.Context) {
		if err := receipt.Insert(ctx); err != nil {
			slog.Error("failed to insert search receipt", "error", err)
		}
	})
	w.Header().Set("Content-Type", "text/markdown")
	if err := results.Text(w); err != nil {
		slog.Error("failed to write search results", "error", err)
	}
}

// - MARK: voice

func (s *Service) TextToSpeech(w http.ResponseWriter, r *http.Request) {
	tok, err := s.sc.Auth.VerifyToken(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusUnauthorized)
		return
	}
	var bod rq.TTSV1
	if err := json.NewDecoder(r.Body).Decode(&bod); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if err := tok.Check(bod.UserID); err != nil {
		http.Error(w, err.Error(), http.StatusUnauthorized)
		return
	}
	ctx := r.Context()
	data, err := s.userData.Get(ctx, bod.UserID)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	if !data.Pro && data.FreeRequestsLeft <= 0 {
		http.Error(w, "monthly free request allowance exhausted", http.StatusTooManyRequests)
		return
	}
	syn, err := s.voice.Synthesize(ctx, bod.UserID, bod.Text, bod.VoiceID)
	if err != nil {
		slog.Error("tts failed", "uid", bod.UserID, "error", err)
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	receipt := db.Receipt{
		UserID:       data.User.ID,
		ServiceName:  llm.VoiceElevenLabsTTS,
		NumRequests:  1,
		AudioSeconds: syn.Seconds,
	}
	s.sd.Run(func(ctx context.Context) {
		if err := receipt.Insert(ctx); err != nil {
			slog.Error("failed to insert tts receipt", "error", err)
		}
	})
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(rp.TTSV1{URL: syn.URL, Key: syn.Key, Seconds: syn.Seconds})
}

// VoiceSignedURL mints a realtime voice session URL. Subscribers only.
func (s *Service) VoiceSignedURL(w http.ResponseWriter, r *http.Request) {
	tok, err := s.sc.Auth.VerifyToken(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusUnauthorized)
		return
	}
	uid := r.URL.Query().Get("userID")
	if err := tok.Check(uid); err != nil {
		http.Error(w, err.Error(), http.StatusUnauthorized)
		return
	}
	ctx := r.Context()
	data, err := s.userData.Get(ctx, uid)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	if !data.Pro {
		http.Error(w, "realtime voice requires a pro subscription", http.StatusForbidden)
		return
	}
	signedURL, err := s.voice.SignedURL(ctx)
	if err != nil {
		slog.Error("failed to get voice signed url", "uid", uid, "error", err)
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(rp.SignedURLV1{SignedURL: signedURL})
}

// - MARK: feedback

func (s *Service) Feedback(w http.ResponseWriter, r *http.Request) {
	tok, err := s.sc.Auth.VerifyTokenFromForm(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusUnauthorized)
		return
	}
	var bod rq.FeedbackV1
	if err := bod.FromForm(r); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if err := tok.Check(bod.UserID); err != nil {
		http.Error(w, err.Error(), http.StatusUnauthorized)
		return
	}
	ctx := r.Context()
	user := users.User{UID: bod.UserID}
	if err := user.GetByUID(ctx, db.D); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	device := users.UserDevice{
		UserID:    user.ID,
		DeviceUID: bod.DeviceID,
		Version:   bod.Version,
	}
	exists, err := device.Exists(ctx, db.D)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	if !exists {
		if err := device.Insert(ctx, db.D); err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
	}
	feedback := users.UserFeedback{
		DeviceID: device.ID,
		Type:     bod.Type,
		Feedback: bod.Feedback,
	}
	if err := feedback.Insert(ctx, db.D); err != nil {
		slog.Error("failed to insert feedback", "uid", bod.UserID, "error", err)
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusCreated)
}
