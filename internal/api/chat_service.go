package api

import (
	"context"
	"encoding/json"
	"fmt"

	"lunabot/internal/domain"
)

// Querier runs gateway queries.
type Querier interface {
	Query(ctx context.Context, query string, binds ...any) (json.RawMessage, error)
}

const chatLogByIDQuery = `
SELECT
    cl._id AS db_id,
    cl.id AS log_id,
    cl.chat_id AS chat_id,
    cl.user_id AS user_id,
    cl.type AS type,
    kakao_decrypt(cl.message, json_extract(cl.v, '$.enc'), cl.user_id) AS message,
    kakao_decrypt(cl.attachment, json_extract(cl.v, '$.enc'), cl.user_id) AS attachment,
    cl.created_at AS sent_at,
    COALESCE(
        kakao_decrypt(friends.name, friends.enc),
        kakao_decrypt(open.nickname, open.enc),
        crypto_user.nickname
    ) AS nickname
FROM db1.chat_logs cl
LEFT JOIN db2.friends friends ON cl.user_id = friends.id
LEFT JOIN db2.open_chat_member open ON cl.user_id = open.user_id
LEFT JOIN user.user crypto_user ON cl.user_id = crypto_user.id
WHERE cl.id = ?;`

// ChatService looks up chat logs through the gateway query proxy. The
// gateway decrypts message fields server-side.
type ChatService struct {
	q Querier
}

func NewChatService(q Querier) *ChatService {
	return &ChatService{q: q}
}

// ChatLogByLogID returns the chat log with the given log id, or nil when
// no such log exists.
func (s *ChatService) ChatLogByLogID(ctx context.Context, logID int64) (*domain.ChatLog, error) {
	data, err := s.q.Query(ctx, chatLogByIDQuery, logID)
	if err != nil {
		return nil, err
	}
	var rows []domain.ChatLog
	if err := json.Unmarshal(data, &rows); err != nil {
		return nil, fmt.Errorf("decode chat log rows: %w", err)
	}
	if len(rows) == 0 {
		return nil, nil
	}
	return &rows[0], nil
}
