package llm

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/JonMunkholm/sheetsmith/internal/mapping"
	"github.com/JonMunkholm/sheetsmith/internal/schema"
	"github.com/JonMunkholm/sheetsmith/internal/table"
)

type mockChatter struct {
	mock.Mock
}

func (m *mockChatter) Chat(ctx context.Context, req ChatRequest) (*ChatResponse, error) {
	args := m.Called(ctx, req)
	resp, _ := args.Get(0).(*ChatResponse)
	return resp, args.Error(1)
}

func chatReply(content string) *ChatResponse {
	return &ChatResponse{Choices: []Choice{{Message: Message{Role: "assistant", Content: content}}}}
}

func request() mapping.Request {
	return mapping.Request{
		Headers:    []string{"Cust", "Tel"},
		SampleRows: []table.Row{table.NewRow("Cust", "Ann", "Tel", "5554567890")},
		Fields: []schema.TargetField{
			{Name: "first_name", Type: schema.TypeString},
			{Name: "phone", Type: schema.TypePhone, Description: "Primary phone"},
		},
		BusinessContext: "crm",
	}
}

func TestSuggester_ParsesReplyInHeaderOrder(t *testing.T) {
	chat := &mockChatter{}
	content := "```json\n" + `{"mappings": {
		"Tel": {"target_field": "phone", "confidence": 0.8, "reasoning": "digits"},
		"Ghost": {"target_field": "first_name", "confidence": 0.5, "reasoning": "?"},
		"Cust": {"target_field": "first_name", "confidence": 0.7, "reasoning": "names"}
	}}` + "\n```"
	chat.On("Chat", mock.Anything, mock.MatchedBy(func(req ChatRequest) bool {
		p := req.Messages[len(req.Messages)-1].Content
		return req.Model == "test-model" &&
			strings.Contains(p, "Business Context: crm") &&
			strings.Contains(p, `["Cust","Tel"]`) &&
			strings.Contains(p, "Primary phone")
	})).Return(chatReply(content), nil).Once()

	got, err := NewSuggester(chat, "test-model").Suggest(context.Background(), request())
	require.NoError(t, err)
	assert.Equal(t, []mapping.ColumnMapping{
		{SourceColumn: "Cust", TargetField: "first_name", Confidence: 0.7, Reasoning: "names"},
		{SourceColumn: "Tel", TargetField: "phone", Confidence: 0.8, Reasoning: "digits"},
		{SourceColumn: "Ghost", TargetField: "first_name", Confidence: 0.5, Reasoning: "?"},
	}, got)
	chat.AssertExpectations(t)
}

func TestSuggester_CachesIdenticalRequests(t *testing.T) {
	chat := &mockChatter{}
	chat.On("Chat", mock.Anything, mock.Anything).
		Return(chatReply(`{"mappings": {"Tel": {"target_field": "phone", "confidence": 0.6}}}`), nil).Once()

	s := NewSuggester(chat, "m")
	first, err := s.Suggest(context.Background(), request())
	require.NoError(t, err)
	first[0].TargetField = "mutated"

	second, err := s.Suggest(context.Background(), request())
	require.NoError(t, err)
	assert.Equal(t, "phone", second[0].TargetField)
	chat.AssertNumberOfCalls(t, "Chat", 1)
}

func TestSuggester_Errors(t *testing.T) {
	boom := errors.New("boom")

	chat := &mockChatter{}
	chat.On("Chat", mock.Anything, mock.Anything).Return(nil, boom).Once()
	_, err := NewSuggester(chat, "m").Suggest(context.Background(), request())
	assert.Same(t, boom, err)

	chat = &mockChatter{}
	chat.On("Chat", mock.Anything, mock.Anything).Return(chatReply("I think Tel is a phone"), nil).Once()
	_, err = NewSuggester(chat, "m").Suggest(context.Background(), request())
	assert.ErrorIs(t, err, ErrBadResponse)
}

func TestSuggester_RecordsUsage(t *testing.T) {
	resp := chatReply(`{"mappings": {"Tel": {"target_field": "phone", "confidence": 0.6}}}`)
	resp.Usage = Usage{PromptTokens: 300000, CompletionTokens: 100000, TotalTokens: 400000}
	chat := &mockChatter{}
	chat.On("Chat", mock.Anything, mock.Anything).Return(resp, nil).Once()

	s := NewSuggester(chat, "m")
	ctx, meter := mapping.TrackUsage(context.Background())
	_, err := s.Suggest(ctx, request())
	require.NoError(t, err)
	_, err = s.Suggest(ctx, request())
	require.NoError(t, err)

	got := meter.Total()
	assert.Equal(t, 1, got.Calls)
	assert.Equal(t, 1, got.CachedCalls)
	assert.Equal(t, 400000, got.TotalTokens)
	assert.InDelta(t, 0.21, got.EstimatedCostUSD, 1e-9)

	// No meter on the context is fine.
	_, err = s.Suggest(context.Background(), request())
	require.NoError(t, err)
}

func TestPricing_Estimate(t *testing.T) {
	assert.Equal(t, 0.0, DefaultPricing.Estimate(Usage{}))
	assert.Equal(t, 0.0007, DefaultPricing.Estimate(Usage{PromptTokens: 2000}))
	assert.Equal(t, 1.4, DefaultPricing.Estimate(Usage{PromptTokens: 1_000_000, CompletionTokens: 1_000_000}))
}

func TestSuggester_WithEngine(t *testing.T) {
	chat := &mockChatter{}
	chat.On("Chat", mock.Anything, mock.Anything).
		Return(chatReply(`{"mappings": {"Cust": {"target_field": "first_name", "confidence": 0.7}, "Tel": {"target_field": "fax", "confidence": 0.9}}}`), nil)

	eng := mapping.NewEngine(NewSuggester(chat, "m"))
	sug, err := eng.Suggest(context.Background(), mapping.StrategyProvider, request())
	require.NoError(t, err)
	assert.Equal(t, []string{"first_name"}, mapping.Targets(sug.Mappings))
	require.Len(t, sug.Discarded, 1)
	assert.Equal(t, "fax", sug.Discarded[0].TargetField)
	assert.Equal(t, 1, sug.Usage.Calls)
}

func TestStripFence(t *testing.T) {
	assert.Equal(t, `{"a":1}`, stripFence("```json\n{\"a\":1}\n```"))
	assert.Equal(t, `{"a":1}`, stripFence("```{\"a\":1}```"))
	assert.Equal(t, `{"a":1}`, stripFence("  {\"a\":1} "))
}
