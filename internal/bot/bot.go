// Package bot holds the handlers shipped with the lunabot binary.
package bot

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"lunabot/internal/api"
	"lunabot/internal/domain"
	"lunabot/internal/router"
)

// CountCommand increments the shared counter and replies with its value.
const CountCommand = "/count"

// AppState is shared by every handler invocation.
type AppState struct {
	mu    sync.Mutex
	count int
}

// Increment bumps the counter and returns the new value.
func (s *AppState) Increment() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.count++
	return s.count
}

func (s *AppState) Count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.count
}

// Handlers logs membership and moderation events and answers the count
// command.
type Handlers struct {
	logger *slog.Logger
}

// Router returns a router with every handler registered.
func Router(logger *slog.Logger) *router.Router {
	h := &Handlers{logger: logger.With("component", "bot")}
	return router.New().
		MustOn(domain.EventMessage, h.OnMessage).
		MustOn(domain.EventUserJoined, h.OnUserJoined).
		MustOn(domain.EventUserLeft, h.OnUserLeft).
		MustOn(domain.EventUserKicked, h.OnUserKicked).
		MustOn(domain.EventMessageDeleted, h.OnMessageDeleted).
		MustOn(domain.EventMessageHidden, h.OnMessageHidden)
}

func (h *Handlers) OnMessage(ctx context.Context, chat *domain.ChatContext, state *AppState) error {
	if strings.TrimSpace(chat.Message.Content) != CountCommand {
		return nil
	}
	return chat.Reply(ctx, "HELLO", state.Increment())
}

func (h *Handlers) OnUserJoined(_ context.Context, chat *domain.ChatContext, ev domain.UserJoined) error {
	for _, u := range ev.JoinedUsers {
		h.logger.Info("user joined", "chat_id", chat.Channel.ID, "user_id", u.ID, "nickname", u.Nickname)
	}
	return nil
}

func (h *Handlers) OnUserLeft(_ context.Context, chat *domain.ChatContext, ev domain.UserLeft) error {
	h.logger.Info("user left", "chat_id", chat.Channel.ID, "user_id", ev.LeftUser.ID, "nickname", ev.LeftUser.Nickname)
	return nil
}

func (h *Handlers) OnUserKicked(_ context.Context, chat *domain.ChatContext, ev domain.UserKicked) error {
	h.logger.Info("user kicked", "chat_id", chat.Channel.ID,
		"user_id", ev.KickedUser.ID, "nickname", ev.KickedUser.Nickname, "by", ev.KickedBy.ID)
	return nil
}

// OnMessageDeleted looks up the deleted message's original log.
func (h *Handlers) OnMessageDeleted(ctx context.Context, chat *domain.ChatContext, ev domain.MessageDeleted, chats *api.ChatService) error {
	log, err := chats.ChatLogByLogID(ctx, ev.LogID)
	if err != nil {
		return fmt.Errorf("look up deleted message %d: %w", ev.LogID, err)
	}
	if log == nil {
		h.logger.Info("message deleted", "chat_id", chat.Channel.ID, "log_id", ev.LogID, "found", false)
		return nil
	}
	h.logger.Info("message deleted", "chat_id", chat.Channel.ID, "log_id", ev.LogID,
		"author", log.Nickname, "message", log.Message)
	return nil
}

func (h *Handlers) OnMessageHidden(_ context.Context, chat *domain.ChatContext, ev domain.MessageHidden) error {
	h.logger.Info("message hidden", "chat_id", chat.Channel.ID, "log_ids", ev.LogIDs)
	return nil
}
