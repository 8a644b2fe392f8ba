// Package chat assembles a RAG-grounded chat turn: retrieve, format
// context, call the chat model, and stream back a
// {chunk*, token*, done}/{error} event sequence, grounded on
// internal/llm/provider.go's Provider/StreamHandler contract and
// original_source/backend/services/search_service.py's context-block
// formatting.
package chat

import (
	"context"
	"fmt"
	"strings"
	"time"

	"knowledgetree/internal/agentbrowser"
	"knowledgetree/internal/categorytree"
	"knowledgetree/internal/llm"
	"knowledgetree/internal/pipeline"
)

// EventType enumerates the streamed event kinds, in the exact ordering
// spec.md §4.17 requires: every chunk event, then every token event,
// then exactly one done (or, on failure, exactly one error terminating
// the stream).
type EventType string

const (
	EventChunk EventType = "chunk"
	EventToken EventType = "token"
	EventDone  EventType = "done"
	EventError EventType = "error"
)

// Event is one item in the streamed sequence.
type Event struct {
	Type EventType

	// chunk fields
	ChunkID    int64
	Similarity float64

	// token fields
	Token string

	// done fields
	InputTokens    int
	OutputTokens   int
	ProcessingTime time.Duration

	// error fields
	Err error
}

// EventFunc receives Events in order.
type EventFunc func(Event)

// Message is one turn of conversation history.
type Message struct {
	Role    string
	Content string
}

// History loads and persists a conversation's prior turns and the
// chunk/token bookkeeping for a completed one. Storage-backed
// implementations live in internal/storage; nil is a valid History for
// stateless callers (every conversation starts empty and nothing is
// persisted).
type History interface {
	Load(ctx context.Context, conversationID string) ([]Message, error)
	Append(ctx context.Context, conversationID string, userMsg, assistantMsg string, chunkIDs []int64, inputTokens, outputTokens int) error
}

// Options tunes one Run call.
type Options struct {
	ProjectID        int64
	ConversationID   string
	UseRAG           bool
	MaxContextChunks int
	MinSimilarity    float64
	Temperature      float64
	Model            string
}

func (o Options) withDefaults() Options {
	if o.MaxContextChunks <= 0 {
		o.MaxContextChunks = 5
	}
	return o
}

const systemPreamble = "You are a helpful assistant answering from the project's indexed knowledge base. Use the provided context when relevant; say so when it doesn't answer the question."

// Assembler wires retrieval, history, and the chat model together.
type Assembler struct {
	retrieval *pipeline.Coordinator
	provider  llm.Provider
	history   History
	now       func() time.Time
}

// New builds an Assembler.
func New(retrieval *pipeline.Coordinator, provider llm.Provider, history History) *Assembler {
	return &Assembler{retrieval: retrieval, provider: provider, history: history, now: time.Now}
}

// contextChunk is one retrieved chunk formatted for the prompt.
type contextChunk struct {
	chunkID    int64
	similarity float64
	title      string
	page       int
	text       string
}

func (c contextChunk) block(index int) string {
	label := fmt.Sprintf("Source %d", index+1)
	if c.title != "" {
		label += ": " + c.title
	}
	if c.page > 0 {
		label += fmt.Sprintf(", Page %d", c.page)
	}
	return fmt.Sprintf("[%s] %s", label, c.text)
}

// Run executes one chat turn, emitting events via emit in the order
// spec.md §4.17 prescribes. It returns after the terminal event (done
// or error) has been emitted.
func (a *Assembler) Run(ctx context.Context, userMessage string, opt Options, emit EventFunc) error {
	opt = opt.withDefaults()
	start := a.now()

	history, err := a.loadHistory(ctx, opt.ConversationID)
	if err != nil {
		emit(Event{Type: EventError, Err: err})
		return err
	}

	var chunks []contextChunk
	if opt.UseRAG && a.retrieval != nil {
		chunks, err = a.retrieveContext(ctx, userMessage, opt)
		if err != nil {
			emit(Event{Type: EventError, Err: err})
			return err
		}
	}

	for i, c := range chunks {
		emit(Event{Type: EventChunk, ChunkID: c.chunkID, Similarity: c.similarity})
		_ = i
	}

	msgs := a.buildMessages(history, chunks, userMessage)

	var answer strings.Builder
	handler := &streamHandler{emit: emit, answer: &answer}
	if err := a.provider.ChatStream(ctx, msgs, nil, opt.Model, handler); err != nil {
		emit(Event{Type: EventError, Err: err})
		return err
	}

	chunkIDs := make([]int64, len(chunks))
	for i, c := range chunks {
		chunkIDs[i] = c.chunkID
	}
	outputTokens := len(strings.Fields(answer.String()))
	inputTokens := len(strings.Fields(userMessage)) + contextWordCount(chunks)

	if a.history != nil {
		if err := a.history.Append(ctx, opt.ConversationID, userMessage, answer.String(), chunkIDs, inputTokens, outputTokens); err != nil {
			emit(Event{Type: EventError, Err: fmt.Errorf("chat: persist turn: %w", err)})
			return err
		}
	}

	emit(Event{
		Type: EventDone, InputTokens: inputTokens, OutputTokens: outputTokens,
		ProcessingTime: a.now().Sub(start),
	})
	return nil
}

func contextWordCount(chunks []contextChunk) int {
	n := 0
	for _, c := range chunks {
		n += len(strings.Fields(c.text))
	}
	return n
}

func (a *Assembler) loadHistory(ctx context.Context, conversationID string) ([]Message, error) {
	if a.history == nil || conversationID == "" {
		return nil, nil
	}
	return a.history.Load(ctx, conversationID)
}

func (a *Assembler) retrieveContext(ctx context.Context, query string, opt Options) ([]contextChunk, error) {
	resp, err := a.retrieval.SearchWithReranking(ctx, query, pipeline.Options{
		ProjectID:    opt.ProjectID,
		K:            opt.MaxContextChunks,
		UseReranking: true,
		UseCRAG:      true,
	})
	if err != nil {
		return nil, fmt.Errorf("chat: retrieve context: %w", err)
	}

	out := make([]contextChunk, 0, len(resp.Items))
	for _, it := range resp.Items {
		if it.FinalScore < opt.MinSimilarity {
			continue
		}
		title, _ := it.Metadata["title"].(string)
		page, _ := it.Metadata["page_number"].(int)
		out = append(out, contextChunk{
			chunkID: it.ChunkID, similarity: it.FinalScore, title: title, page: page, text: it.Text,
		})
		if len(out) >= opt.MaxContextChunks {
			break
		}
	}
	return out, nil
}

// buildMessages assembles system preamble + formatted context + history
// + current user message, per spec.md §4.17 step 3.
func (a *Assembler) buildMessages(history []Message, chunks []contextChunk, userMessage string) []llm.Message {
	msgs := []llm.Message{{Role: "system", Content: systemPreamble}}

	if len(chunks) > 0 {
		blocks := make([]string, len(chunks))
		for i, c := range chunks {
			blocks[i] = c.block(i)
		}
		msgs = append(msgs, llm.Message{Role: "system", Content: strings.Join(blocks, "\n---\n\n")})
	}

	for _, h := range history {
		msgs = append(msgs, llm.Message{Role: h.Role, Content: h.Content})
	}
	msgs = append(msgs, llm.Message{Role: "user", Content: userMessage})
	return msgs
}

// streamHandler adapts llm.StreamHandler's OnDelta callback into ordered
// token Events and accumulates the full answer text.
type streamHandler struct {
	emit   EventFunc
	answer *strings.Builder
}

func (h *streamHandler) OnDelta(content string) {
	h.answer.WriteString(content)
	h.emit(Event{Type: EventToken, Token: content})
}

func (h *streamHandler) OnToolCall(llm.ToolCall)              {}
func (h *streamHandler) OnImage(llm.GeneratedImage)           {}
func (h *streamHandler) OnThoughtSummary(string)              {}

// AgentModeRunner runs the category-tree-building bypass-RAG path:
// crawl a seed URL, ask the model for a hierarchical category tree, and
// stream a summary back instead of a RAG answer, per spec.md §4.17's
// "agent mode" paragraph.
type AgentModeRunner struct {
	browser   *agentbrowser.Browser
	provider  llm.Provider
	generator *categorytree.Generator
	model     string
}

// NewAgentModeRunner builds an AgentModeRunner.
func NewAgentModeRunner(browser *agentbrowser.Browser, provider llm.Provider, model string) *AgentModeRunner {
	return &AgentModeRunner{browser: browser, provider: provider, generator: categorytree.New(), model: model}
}

// CategoryPlan is one node of the LLM's proposed taxonomy, matching the
// {categories: [{name, description, children}]} shape spec.md names.
type CategoryPlan struct {
	Name        string          `json:"name"`
	Description string          `json:"description"`
	Children    []CategoryPlan  `json:"children"`
}

// Run crawls seedURL, asks the model to propose a category tree from the
// extracted text, flattens it into domainmodel.Category rows under
// projectID (with parent references resolved via categorytree's temp-id
// scheme), and emits a summary token stream terminated by done.
func (r *AgentModeRunner) Run(ctx context.Context, projectID int64, seedURL, prompt string, emit EventFunc) ([]categorytree.PendingCategory, error) {
	start := time.Now()
	if r.browser == nil {
		err := fmt.Errorf("chat: agent mode requires a configured browser")
		emit(Event{Type: EventError, Err: err})
		return nil, err
	}

	extracted, err := r.browser.Run(ctx, seedURL, prompt, agentbrowser.ProgressCallback{})
	if err != nil {
		emit(Event{Type: EventError, Err: err})
		return nil, err
	}
	var text strings.Builder
	for i, e := range extracted {
		if i > 0 {
			text.WriteString("\n\n")
		}
		text.WriteString(e.Text)
	}

	msgs := []llm.Message{
		{Role: "system", Content: "Organize the following page content into a hierarchical category tree. Reply as JSON: {\"categories\": [{\"name\": \"...\", \"description\": \"...\", \"children\": [...]}]}."},
		{Role: "user", Content: text.String()},
	}
	resp, err := r.provider.Chat(ctx, msgs, nil, r.model)
	if err != nil {
		emit(Event{Type: EventError, Err: err})
		return nil, err
	}

	roots, err := parseCategoryPlan(resp.Content)
	if err != nil {
		emit(Event{Type: EventError, Err: err})
		return nil, err
	}

	entries := planToTocEntries(roots)
	pending, _, err := r.generator.GenerateTree(entries, projectID, nil)
	if err != nil {
		emit(Event{Type: EventError, Err: err})
		return nil, err
	}

	summary := fmt.Sprintf("Generated %d categories from %s", len(pending), seedURL)
	for _, tok := range strings.Fields(summary) {
		emit(Event{Type: EventToken, Token: tok + " "})
	}
	emit(Event{Type: EventDone, ProcessingTime: time.Since(start)})
	return pending, nil
}
