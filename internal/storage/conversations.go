package storage

import (
	"context"
	"fmt"

	"knowledgetree/internal/chat"
)

// Load returns conversationID's prior turns in chronological order,
// satisfying chat.History.
func (p *Postgres) Load(ctx context.Context, conversationID string) ([]chat.Message, error) {
	rows, err := p.pool.Query(ctx, `
		SELECT role, content FROM conversation_messages
		WHERE conversation_id = $1
		ORDER BY created_at ASC, id ASC`, conversationID)
	if err != nil {
		return nil, fmt.Errorf("storage: load conversation: %w", err)
	}
	defer rows.Close()

	var out []chat.Message
	for rows.Next() {
		var m chat.Message
		if err := rows.Scan(&m.Role, &m.Content); err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

// Append persists one completed chat turn (the user message, the
// assistant's reply, and the chunk ids/token counts behind it),
// satisfying chat.History.
func (p *Postgres) Append(ctx context.Context, conversationID string, userMsg, assistantMsg string, chunkIDs []int64, inputTokens, outputTokens int) error {
	tx, err := p.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("storage: begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, `
		INSERT INTO conversation_messages (conversation_id, role, content)
		VALUES ($1, 'user', $2)`, conversationID, userMsg); err != nil {
		return fmt.Errorf("storage: append user message: %w", err)
	}
	if _, err := tx.Exec(ctx, `
		INSERT INTO conversation_messages (conversation_id, role, content, chunk_ids, input_tokens, output_tokens)
		VALUES ($1, 'assistant', $2, $3, $4, $5)`,
		conversationID, assistantMsg, chunkIDs, inputTokens, outputTokens); err != nil {
		return fmt.Errorf("storage: append assistant message: %w", err)
	}
	return tx.Commit(ctx)
}

var _ chat.History = (*Postgres)(nil)
