package chat

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"knowledgetree/internal/llm"
)

type fakeProvider struct {
	tokens      []string
	chatReply   llm.Message
	lastMessages []llm.Message
}

func (f *fakeProvider) Chat(ctx context.Context, msgs []llm.Message, tools []llm.ToolSchema, model string) (llm.Message, error) {
	f.lastMessages = msgs
	return f.chatReply, nil
}

func (f *fakeProvider) ChatStream(ctx context.Context, msgs []llm.Message, tools []llm.ToolSchema, model string, h llm.StreamHandler) error {
	f.lastMessages = msgs
	for _, tok := range f.tokens {
		h.OnDelta(tok)
	}
	return nil
}

type fakeHistory struct {
	appended bool
	userMsg, assistantMsg string
}

func (f *fakeHistory) Load(ctx context.Context, conversationID string) ([]Message, error) {
	return nil, nil
}

func (f *fakeHistory) Append(ctx context.Context, conversationID string, userMsg, assistantMsg string, chunkIDs []int64, inputTokens, outputTokens int) error {
	f.appended = true
	f.userMsg, f.assistantMsg = userMsg, assistantMsg
	return nil
}

func TestRun_NoRAGEmitsTokensThenDone(t *testing.T) {
	provider := &fakeProvider{tokens: []string{"Hello", " there"}}
	hist := &fakeHistory{}
	a := New(nil, provider, hist)

	var events []Event
	err := a.Run(context.Background(), "hi", Options{UseRAG: false, ConversationID: "c1"}, func(e Event) {
		events = append(events, e)
	})
	require.NoError(t, err)
	require.True(t, hist.appended)
	require.Equal(t, "Hello there", hist.assistantMsg)

	require.Len(t, events, 3) // 2 tokens + done
	require.Equal(t, EventToken, events[0].Type)
	require.Equal(t, EventToken, events[1].Type)
	require.Equal(t, EventDone, events[2].Type)
	require.Equal(t, "system", provider.lastMessages[0].Role)
}

func TestRun_ProviderErrorEmitsErrorEvent(t *testing.T) {
	a := New(nil, erroringProvider{}, nil)
	var events []Event
	err := a.Run(context.Background(), "hi", Options{}, func(e Event) { events = append(events, e) })
	require.Error(t, err)
	require.Len(t, events, 1)
	require.Equal(t, EventError, events[0].Type)
}

type erroringProvider struct{}

func (erroringProvider) Chat(context.Context, []llm.Message, []llm.ToolSchema, string) (llm.Message, error) {
	return llm.Message{}, context.DeadlineExceeded
}

func (erroringProvider) ChatStream(context.Context, []llm.Message, []llm.ToolSchema, string, llm.StreamHandler) error {
	return context.DeadlineExceeded
}

func TestParseCategoryPlan_HandlesCodeFence(t *testing.T) {
	content := "```json\n{\"categories\": [{\"name\": \"A\", \"description\": \"d\", \"children\": [{\"name\": \"A.1\"}]}]}\n```"
	plans, err := parseCategoryPlan(content)
	require.NoError(t, err)
	require.Len(t, plans, 1)
	require.Equal(t, "A", plans[0].Name)
	require.Len(t, plans[0].Children, 1)
}
