package provider

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"theme-gen-ai-api/internal/config"
	"theme-gen-ai-api/internal/domain/entity"
	"theme-gen-ai-api/internal/domain/service"
)

type fakeChatModel struct {
	content  string
	err      error
	delay    time.Duration
	usage    *schema.TokenUsage
	lastMsgs []*schema.Message
	calls    int
}

func (f *fakeChatModel) Generate(ctx context.Context, input []*schema.Message, _ ...model.Option) (*schema.Message, error) {
	f.calls++
	f.lastMsgs = input
	if f.delay > 0 {
		select {
		case <-time.After(f.delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if f.err != nil {
		return nil, f.err
	}
	msg := schema.AssistantMessage(f.content, nil)
	if f.usage != nil {
		msg.ResponseMeta = &schema.ResponseMeta{Usage: f.usage}
	}
	return msg, nil
}

func (f *fakeChatModel) Stream(context.Context, []*schema.Message, ...model.Option) (*schema.StreamReader[*schema.Message], error) {
	return nil, errors.New("not supported")
}

type fakeSource struct {
	chat *fakeChatModel
}

func (s *fakeSource) Get(context.Context, string) (model.BaseChatModel, error) { return s.chat, nil }
func (s *fakeSource) ResolveProvider(name string) string {
	if name == "" {
		return "openrouter"
	}
	return name
}
func (s *fakeSource) TextModel(string) string   { return "openai/gpt-4o-mini" }
func (s *fakeSource) VisionModel(string) string { return "openai/gpt-4o" }

type fakeAudit struct {
	entries []service.AuditInput
	err     error
}

func (a *fakeAudit) Record(_ context.Context, in service.AuditInput) (string, error) {
	a.entries = append(a.entries, in)
	if a.err != nil {
		return "", a.err
	}
	return "audit-1", nil
}

func textRequest() *entity.GenerationRequest {
	return &entity.GenerationRequest{
		ActorID: "u1",
		Kind:    entity.GenerationKindText,
		Params:  entity.GenerationParams{Theme: "birthday", Style: "funny", Length: "short"},
	}
}

func TestClient_TextSuccess(t *testing.T) {
	chat := &fakeChatModel{
		content: "Here is your message:\n\n\"Another year older, still not wiser!\"\n\nNote: adjust as needed.",
		usage:   &schema.TokenUsage{PromptTokens: 1000, CompletionTokens: 2000},
	}
	audit := &fakeAudit{}
	c := NewClient(&fakeSource{chat: chat}, NewPriceTable(nil), audit, Options{})

	out, err := c.Generate(context.Background(), textRequest())
	require.NoError(t, err)
	require.True(t, out.Success)
	assert.Equal(t, "Another year older, still not wiser!", out.Content)
	assert.Equal(t, 1000, out.InputTokens)
	assert.Equal(t, 2000, out.OutputTokens)
	assert.InDelta(t, 1000/1e6*0.15+2000/1e6*0.60, out.CostEstimate, 1e-12)
	assert.Equal(t, "openrouter", out.Provider)
	assert.Equal(t, "openai/gpt-4o-mini", out.Model)
	assert.Equal(t, "audit-1", out.AuditLogID)

	require.Len(t, audit.entries, 1)
	assert.True(t, audit.entries[0].Success)
	assert.Equal(t, "u1", audit.entries[0].ActorID)
}

func TestClient_ProviderFailureIsOutcome(t *testing.T) {
	chat := &fakeChatModel{err: errors.New("upstream 503")}
	audit := &fakeAudit{}
	c := NewClient(&fakeSource{chat: chat}, nil, audit, Options{})

	out, err := c.Generate(context.Background(), textRequest())
	require.NoError(t, err)
	assert.False(t, out.Success)
	assert.Contains(t, out.ErrorDetail, "upstream 503")
	assert.Empty(t, out.Content)

	require.Len(t, audit.entries, 1)
	assert.False(t, audit.entries[0].Success)
	assert.Contains(t, audit.entries[0].ErrorMsg, "upstream 503")
}

func TestClient_TimeoutIsProviderFailure(t *testing.T) {
	chat := &fakeChatModel{content: "late", delay: time.Second}
	c := NewClient(&fakeSource{chat: chat}, nil, &fakeAudit{}, Options{TextTimeout: 20 * time.Millisecond})

	out, err := c.Generate(context.Background(), textRequest())
	require.NoError(t, err)
	assert.False(t, out.Success)
	assert.Contains(t, out.ErrorDetail, "timeout")
}

func TestClient_AuditFailureDoesNotFailCall(t *testing.T) {
	chat := &fakeChatModel{content: "Happy birthday!"}
	c := NewClient(&fakeSource{chat: chat}, nil, &fakeAudit{err: errors.New("db down")}, Options{})

	out, err := c.Generate(context.Background(), textRequest())
	require.NoError(t, err)
	assert.True(t, out.Success)
	assert.Empty(t, out.AuditLogID)
}

func TestClient_InvalidParamsRejectedBeforeCall(t *testing.T) {
	chat := &fakeChatModel{content: "x"}
	audit := &fakeAudit{}
	c := NewClient(&fakeSource{chat: chat}, nil, audit, Options{})

	req := textRequest()
	req.Params.Style = "sarcastic"
	_, err := c.Generate(context.Background(), req)
	assert.ErrorIs(t, err, ErrInvalidParams)
	assert.Zero(t, chat.calls)
	assert.Empty(t, audit.entries)
}

func TestClient_ImageAnalysis(t *testing.T) {
	chat := &fakeChatModel{
		content: "Sure!\n```json\n{\"description\":\"A cake with candles\",\"suggested_themes\":[\"birthday\",\" \"],\"mood\":\"joyful\",\"confidence\":1.4}\n```",
	}
	c := NewClient(&fakeSource{chat: chat}, nil, &fakeAudit{}, Options{})

	out, err := c.Generate(context.Background(), &entity.GenerationRequest{
		Kind:   entity.GenerationKindImage,
		Params: entity.GenerationParams{ImageURL: "https://cdn.example.com/cake.jpg"},
	})
	require.NoError(t, err)
	require.True(t, out.Success)
	require.NotNil(t, out.Analysis)
	assert.Equal(t, "A cake with candles", out.Analysis.Description)
	assert.Equal(t, []string{"birthday"}, out.Analysis.SuggestedThemes)
	assert.Equal(t, 1.0, out.Analysis.Confidence)
	assert.Equal(t, "openai/gpt-4o", out.Model)

	require.Len(t, chat.lastMsgs, 1)
	parts := chat.lastMsgs[0].MultiContent
	require.Len(t, parts, 2)
	assert.Equal(t, schema.ChatMessagePartTypeImageURL, parts[1].Type)
	assert.Equal(t, "https://cdn.example.com/cake.jpg", parts[1].ImageURL.URL)
}

func TestClient_ImageUnparseableIsFailure(t *testing.T) {
	chat := &fakeChatModel{content: "I cannot see the image."}
	c := NewClient(&fakeSource{chat: chat}, nil, &fakeAudit{}, Options{})

	out, err := c.Generate(context.Background(), &entity.GenerationRequest{
		Kind:   entity.GenerationKindImage,
		Params: entity.GenerationParams{ImageURL: "data:image/png;base64,AAAA"},
	})
	require.NoError(t, err)
	assert.False(t, out.Success)
	assert.NotEmpty(t, out.ErrorDetail)
}

func TestBuildTextMessages_Deterministic(t *testing.T) {
	p := entity.GenerationParams{Theme: "graduation", Style: "Inspirational", Length: "long", Context: strings.Repeat("x", 600)}
	a := BuildTextMessages(p)
	b := BuildTextMessages(p)
	require.Len(t, a, 2)
	assert.Equal(t, a[1].Content, b[1].Content)
	assert.Contains(t, a[1].Content, "at most 160 words")
	assert.Contains(t, a[1].Content, strings.Repeat("x", 500)+"\n")
	assert.NotContains(t, a[1].Content, strings.Repeat("x", 501))
}

func TestValidateParams(t *testing.T) {
	assert.NoError(t, ValidateParams(entity.GenerationKindText, entity.GenerationParams{Theme: "t", Style: "formal", Length: "medium"}))
	assert.ErrorIs(t, ValidateParams(entity.GenerationKindText, entity.GenerationParams{Style: "formal", Length: "medium"}), ErrInvalidParams)
	assert.ErrorIs(t, ValidateParams(entity.GenerationKindText, entity.GenerationParams{Theme: "t", Style: "formal", Length: "huge"}), ErrInvalidParams)
	assert.ErrorIs(t, ValidateParams(entity.GenerationKindImage, entity.GenerationParams{ImageURL: "ftp://x"}), ErrInvalidParams)
	assert.ErrorIs(t, ValidateParams("video", entity.GenerationParams{}), ErrInvalidParams)
}

func TestCleanText(t *testing.T) {
	cases := map[string]string{
		"Caption: Happy days":                        "Happy days",
		"Here's a heartfelt message: “Thank you”":    "Thank you",
		"«Bonne fête»":                               "Bonne fête",
		"「おめでとう」":                                    "おめでとう",
		"Congrats!\n\nI hope this helps.":            "Congrats!",
		"Congrats!\n\nFeel free to edit.\n\nNote: x": "Congrats!",
		"He said \"hi\" and left":                    "He said \"hi\" and left",
		"Line one.\n\nLine two.":                     "Line one.\n\nLine two.",
		"'Cheers'":                                   "Cheers",
		"Message: \"„Alles Gute“\"":                  "Alles Gute",
	}
	for in, want := range cases {
		assert.Equal(t, want, CleanText(in), "input %q", in)
	}
}

func TestPriceTable_Estimate(t *testing.T) {
	table := NewPriceTable(map[string]config.PriceConfig{
		"Custom/Model": {Input: 1, Output: 2},
	})

	assert.Equal(t, 0.0, table.Estimate("unknown/model", 1000, 1000))
	assert.Equal(t, 0.0, table.Estimate("meta-llama/llama-3.1-8b-instruct:free", 1e6, 1e6))
	assert.InDelta(t, 3.0, table.Estimate("custom/model", 1e6, 1e6), 1e-9)
	assert.Equal(t, 0.0, table.Estimate("custom/model", -5, -5))

	first := table.Estimate("gpt-4o", 1234, 567)
	assert.Equal(t, first, table.Estimate("gpt-4o", 1234, 567))
	assert.GreaterOrEqual(t, first, 0.0)
}
