package assistant

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/lumen-search/backend/pkg/services/db"
	"github.com/lumen-search/backend/pkg/services/llm"
	"github.com/lumen-search/backend/pkg/services/tools"
	"github.com/lumen-search/backend/pkg/services/userdata"
	"github.com/lumen-search/backend/types/ty"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeTurn struct {
	text      []string
	toolCalls []llm.ToolCall
	in, out   int
}

type fakeProvider struct {
	turns []fakeTurn
	calls []llm.ChatRequest
}

func (f *fakeProvider) Prompt(ctx context.Context, req llm.ChatRequest, rsp *llm.StreamResponse) error {
	f.calls = append(f.calls, req)
	turn := f.turns[0]
	f.turns = f.turns[1:]
	ch := make(chan llm.Token, len(turn.text))
	for _, t := range turn.text {
		ch <- llm.Token{Ok: t}
	}
	rsp.InputTokens = turn.in
	rsp.OutputTokens = turn.out
	rsp.ToolCalls = turn.toolCalls
	close(ch)
	rsp.Text = ch
	return nil
}

type echoTool struct {
	pro    bool
	called int
}

func (e *echoTool) Name() string             { return "echo" }
func (e *echoTool) Service() llm.ServiceName { return llm.ToolWebSearch }
func (e *echoTool) Pro() bool                { return e.pro }
func (e *echoTool) Definition() llm.FunctionTool {
	return llm.FunctionTool{Type: "function", Function: llm.FunctionToolDef{Name: "echo"}}
}
func (e *echoTool) Call(ctx context.Context, args json.RawMessage) (string, error) {
	e.called++
	return "echo: " + string(args), nil
}

func newTestService(t *testing.T, provider llm.Provider, tool tools.Tool) (*Service, sqlmock.Sqlmock, *sync.WaitGroup) {
	t.Helper()
	mockDB, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	t.Cleanup(func() { mockDB.Close() })
	db.D = mockDB

	var wg sync.WaitGroup
	sd := ty.ShutdownContext{
		Background:       context.Background(),
		WaitGroup:        &wg,
		ShutdownDuration: 5 * time.Second,
	}
	registry := tools.NewRegistry(tool)
	providers := map[llm.ServiceName]llm.Provider{
		llm.ModelGemini15Flash: provider,
		llm.ModelGPT4o:         provider,
	}
	svc := NewService(sd, userdata.NewService(), registry, providers)
	return svc, mock, &wg
}

func expectFreeUser(mock sqlmock.Sqlmock, uid string, id int64, requestsUsed int64) {
	mock.ExpectQuery("SELECT id, email FROM users WHERE uid = ?").
		WithArgs(uid).
		WillReturnRows(sqlmock.NewRows([]string{"id", "email"}).AddRow(id, "u@example.com"))
	mock.ExpectQuery("SELECT id, user_id, stripe_sub_id").
		WithArgs(id).
		WillReturnRows(sqlmock.NewRows([]string{"id"}))
	mock.ExpectQuery(`SELECT COALESCE\(SUM\(num_requests\), 0\)`).
		WithArgs(id, sqlmock.AnyArg()).
		WillReturnRows(sqlmock.NewRows([]string{"r", "t", "s"}).AddRow(requestsUsed, 100, 0))
}

func TestChatSimpleTurn(t *testing.T) {
	provider := &fakeProvider{turns: []fakeTurn{
		{text: []string{"Hello", " there"}, in: 12, out: 4},
	}}
	svc, mock, wg := newTestService(t, provider, &echoTool{})

	expectFreeUser(mock, "uid-chat-1", 3, 10)
	mock.ExpectExec("INSERT INTO conversations").
		WithArgs(int64(3), "What is Go?").
		WillReturnResult(sqlmock.NewResult(21, 1))
	mock.ExpectExec("INSERT INTO messages").
		WithArgs(int64(21), "user", "What is Go?", "", "").
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec("INSERT INTO messages").
		WithArgs(int64(21), "assistant", "Hello there", "gemini-1.5-flash", "").
		WillReturnResult(sqlmock.NewResult(2, 1))
	mock.ExpectExec("UPDATE conversations SET updated_at").
		WithArgs(int64(21)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectQuery("SELECT id FROM services WHERE name = ?").
		WithArgs("gemini-1.5-flash").
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(1))
	mock.ExpectExec("INSERT INTO receipts").
		WillReturnResult(sqlmock.NewResult(1, 1))

	var out strings.Builder
	res, err := svc.Chat(context.Background(), Request{UID: "uid-chat-1", Prompt: "What is Go?"}, &out)
	require.NoError(t, err)
	wg.Wait()

	assert.Equal(t, "Hello there", out.String())
	assert.Equal(t, "Hello there", res.Response)
	assert.Equal(t, int64(21), res.ConversationID)
	assert.Equal(t, 12, res.InputTokens)
	assert.Equal(t, 4, res.OutputTokens)
	assert.Equal(t, 0, res.ToolCalls)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestChatToolLoop(t *testing.T) {
	provider := &fakeProvider{turns: []fakeTurn{
		{toolCalls: []llm.ToolCall{{ID: "c1", Name: "echo", Arguments: json.RawMessage(`{"q":"go"}`)}}, in: 10, out: 2},
		{text: []string{"Found it."}, in: 20, out: 3},
	}}
	tool := &echoTool{}
	svc, mock, wg := newTestService(t, provider, tool)
	mock.MatchExpectationsInOrder(false)

	expectFreeUser(mock, "uid-chat-2", 4, 0)
	mock.ExpectExec("INSERT INTO conversations").WillReturnResult(sqlmock.NewResult(22, 1))
	// user, tool, and assistant messages
	mock.ExpectExec("INSERT INTO messages").WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec("INSERT INTO messages").WillReturnResult(sqlmock.NewResult(2, 1))
	mock.ExpectExec("INSERT INTO messages").WillReturnResult(sqlmock.NewResult(3, 1))
	mock.ExpectExec("UPDATE conversations SET updated_at").WillReturnResult(sqlmock.NewResult(0, 1))
	// chat receipt and tool receipt
	mock.ExpectQuery("SELECT id FROM services WHERE name = ?").
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(1))
	mock.ExpectExec("INSERT INTO receipts").WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectQuery("SELECT id FROM services WHERE name = ?").
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(2))
	mock.ExpectExec("INSERT INTO receipts").WillReturnResult(sqlmock.NewResult(2, 1))

	var out strings.Builder
	res, err := svc.Chat(context.Background(), Request{UID: "uid-chat-2", Prompt: "search go"}, &out)
	require.NoError(t, err)
	wg.Wait()

	assert.Equal(t, "Found it.", res.Response)
	assert.Equal(t, 1, res.ToolCalls)
	assert.Equal(t, 1, tool.called)
	assert.Equal(t, 30, res.InputTokens)
	assert.Equal(t, 5, res.OutputTokens)
	require.Len(t, provider.calls, 2)
	// Second round carries the tool result back to the model.
	last := provider.calls[1].Messages
	require.NotEmpty(t, last)
	assert.Equal(t, "tool", last[len(last)-1].Role)
	assert.Equal(t, "c1", last[len(last)-1].ToolCallID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestChatToolLoopBounded(t *testing.T) {
	// A model that asks for tools on every turn, including the forced
	// final round where Tools is nil.
	call := func(id string) []llm.ToolCall {
		return []llm.ToolCall{{ID: id, Name: "echo", Arguments: json.RawMessage(`{}`)}}
	}
	provider := &fakeProvider{turns: []fakeTurn{
		{toolCalls: call("c0"), in: 1, out: 1},
		{toolCalls: call("c1"), in: 1, out: 1},
		{toolCalls: call("c2"), in: 1, out: 1},
		{toolCalls: call("c3"), in: 1, out: 1},
		{toolCalls: call("c4"), in: 1, out: 1},
		{toolCalls: call("c5"), in: 1, out: 1},
	}}
	tool := &echoTool{}
	svc, mock, wg := newTestService(t, provider, tool)
	mock.MatchExpectationsInOrder(false)

	expectFreeUser(mock, "uid-chat-6", 7, 0)
	mock.ExpectExec("INSERT INTO conversations").WillReturnResult(sqlmock.NewResult(23, 1))
	// user message, five tool messages, final assistant message
	for i := 0; i < 7; i++ {
		mock.ExpectExec("INSERT INTO messages").WillReturnResult(sqlmock.NewResult(int64(i+1), 1))
	}
	mock.ExpectExec("UPDATE conversations SET updated_at").WillReturnResult(sqlmock.NewResult(0, 1))
	// chat receipt plus one receipt per dispatched tool call
	for i := 0; i < 6; i++ {
		mock.ExpectQuery("SELECT id FROM services WHERE name = ?").
			WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(int64(i + 1)))
		mock.ExpectExec("INSERT INTO receipts").WillReturnResult(sqlmock.NewResult(int64(i+1), 1))
	}

	var out strings.Builder
	res, err := svc.Chat(context.Background(), Request{UID: "uid-chat-6", Prompt: "keep digging"}, &out)
	require.NoError(t, err)
	wg.Wait()

	require.Len(t, provider.calls, maxToolRounds+1)
	assert.NotNil(t, provider.calls[maxToolRounds-1].Tools, "rounds before the limit offer tools")
	assert.Nil(t, provider.calls[maxToolRounds].Tools, "final round must not offer tools")
	assert.Equal(t, maxToolRounds, tool.called, "final-round tool request is not dispatched")
	assert.Equal(t, maxToolRounds, res.ToolCalls)
	assert.NoError(t, mock.ExpectationsWereMet())
}

// firehoseProvider streams on an unbuffered channel without watching ctx,
// like a provider goroutine mid-response.
type firehoseProvider struct {
	tokens int
	done   chan struct{}
}

func (f *firehoseProvider) Prompt(ctx context.Context, req llm.ChatRequest, rsp *llm.StreamResponse) error {
	ch := make(chan llm.Token)
	rsp.Text = ch
	go func() {
		defer close(f.done)
		defer close(ch)
		for i := 0; i < f.tokens; i++ {
			ch <- llm.Token{Ok: "chunk "}
		}
	}()
	return nil
}

type failingWriter struct{}

func (failingWriter) Write(p []byte) (int, error) {
	return 0, errors.New("client disconnected")
}

func TestChatDrainsStreamOnWriteError(t *testing.T) {
	provider := &firehoseProvider{tokens: 50, done: make(chan struct{})}
	svc, mock, _ := newTestService(t, provider, &echoTool{})

	expectFreeUser(mock, "uid-chat-7", 8, 0)
	mock.ExpectExec("INSERT INTO conversations").WillReturnResult(sqlmock.NewResult(24, 1))
	mock.ExpectExec("INSERT INTO messages").WillReturnResult(sqlmock.NewResult(1, 1))

	_, err := svc.Chat(context.Background(), Request{UID: "uid-chat-7", Prompt: "stream"}, failingWriter{})
	require.Error(t, err)

	select {
	case <-provider.done:
	case <-time.After(2 * time.Second):
		t.Fatal("stream goroutine still blocked after write failure")
	}
}

func TestChatEstimatesMissingUsage(t *testing.T) {
	text := "Go is a statically typed language."
	provider := &fakeProvider{turns: []fakeTurn{
		{text: []string{text}},
	}}
	svc, mock, wg := newTestService(t, provider, &echoTool{})
	mock.MatchExpectationsInOrder(false)

	expectFreeUser(mock, "uid-chat-8", 9, 0)
	mock.ExpectExec("INSERT INTO conversations").WillReturnResult(sqlmock.NewResult(25, 1))
	mock.ExpectExec("INSERT INTO messages").WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec("INSERT INTO messages").WillReturnResult(sqlmock.NewResult(2, 1))
	mock.ExpectExec("UPDATE conversations SET updated_at").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectQuery("SELECT id FROM services WHERE name = ?").
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(1))
	mock.ExpectExec("INSERT INTO receipts").WillReturnResult(sqlmock.NewResult(1, 1))

	var out strings.Builder
	res, err := svc.Chat(context.Background(), Request{UID: "uid-chat-8", Prompt: "hi"}, &out)
	require.NoError(t, err)
	wg.Wait()

	assert.Equal(t, llm.EstimateTokens(text), res.OutputTokens)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestChatProModelRejectedForFreeUser(t *testing.T) {
	provider := &fakeProvider{}
	svc, mock, _ := newTestService(t, provider, &echoTool{})
	expectFreeUser(mock, "uid-chat-3", 5, 0)

	var out strings.Builder
	_, err := svc.Chat(context.Background(), Request{
		UID: "uid-chat-3", Prompt: "hi", Model: llm.ModelGPT4o,
	}, &out)
	assert.ErrorIs(t, err, ErrProRequired)
	assert.Empty(t, provider.calls)
}

func TestChatAllowanceExhausted(t *testing.T) {
	provider := &fakeProvider{}
	svc, mock, _ := newTestService(t, provider, &echoTool{})
	expectFreeUser(mock, "uid-chat-4", 6, userdata.FreeMonthlyRequests)

	var out strings.Builder
	_, err := svc.Chat(context.Background(), Request{UID: "uid-chat-4", Prompt: "hi"}, &out)
	assert.ErrorIs(t, err, ErrNoRequestsLeft)
}

func TestChatUnknownModel(t *testing.T) {
	svc, _, _ := newTestService(t, &fakeProvider{}, &echoTool{})
	var out strings.Builder
	_, err := svc.Chat(context.Background(), Request{
		UID: "uid-chat-5", Prompt: "hi", Model: "not-a-model",
	}, &out)
	assert.ErrorIs(t, err, ErrUnknownModel)
}

func TestTitleFromPrompt(t *testing.T) {
	assert.Equal(t, "short prompt", titleFromPrompt("short   prompt"))
	long := strings.Repeat("word ", 40)
	assert.Len(t, []rune(titleFromPrompt(long)), 80)
}
