// Package classify turns raw gateway frames into chat contexts and typed feed events.
package classify

import (
	"encoding/json"
	"fmt"

	"lunabot/internal/domain"
)

// Result is the outcome of classifying one frame.
type Result struct {
	Chat  *domain.ChatContext
	Event domain.EventName
	Feed  domain.FeedEvent // nil unless a known feed payload was recognized
}

// Classify decodes one frame. Only an undecodable frame is an error; malformed
// mention or feed payloads and unknown enum codes degrade to defaults.
func Classify(frame []byte, replier domain.Replier) (Result, error) {
	var rec domain.RawChatLog
	if err := json.Unmarshal(frame, &rec); err != nil {
		return Result{}, fmt.Errorf("decode chat log: %w", err)
	}
	return FromRecord(rec, replier), nil
}

// FromRecord classifies an already decoded record.
func FromRecord(rec domain.RawChatLog, replier domain.Replier) Result {
	chat := buildContext(rec, replier)

	res := Result{Chat: chat, Event: domain.EventMessage}
	if chat.Message.Type != domain.MessageTypeFeed {
		return res
	}
	if feed := parseFeed(chat.Message.Content, chat.Sender, chat.Message.SendAt); feed != nil {
		res.Feed = feed
		res.Event = feed.EventName()
	}
	return res
}

func buildContext(rec domain.RawChatLog, replier domain.Replier) *domain.ChatContext {
	sender := domain.User{ID: rec.UserID}
	channel := domain.Channel{
		ID:          rec.ChatID,
		Type:        rec.RoomType,
		PrivateMeta: rec.RoomPrivateMeta,
	}
	message := domain.Message{
		DBID:        rec.DBID,
		LogID:       rec.LogID,
		SendAt:      rec.SendAt,
		Type:        domain.ParseMessageType(rec.Type),
		Content:     rec.Message,
		Attachment:  rec.Attachment,
		MentionInfo: ParseMentionInfo(rec.Attachment),
	}

	if channel.IsOpen() {
		sender.Nickname = rec.OpenNickname
		sender.ProfileURL = rec.OpenProfileURL
		sender.Open = &domain.OpenUserExtra{
			MemberType:    rec.OpenLinkMemberType,
			ProfileLinkID: rec.OpenProfileLinkID,
			ProfileType:   rec.OpenProfileType,
		}
		channel.Open = &domain.OpenChannelExtra{
			LinkID:     rec.OpenLinkID,
			LinkURL:    rec.OpenLinkRoomURL,
			HostUserID: rec.OpenLinkHostID,
			Name:       rec.OpenLinkRoomName,
			CoverURL:   rec.OpenLinkRoomCoverURL,
		}
	} else {
		sender.Nickname = firstNonEmpty(rec.CryptoUserNickname, rec.FriendsNickname)
		sender.ProfileURL = firstNonEmpty(rec.CryptoUserProfileURL, rec.FriendsProfileURL)
	}

	return domain.NewChatContext(sender, channel, message, rec.VMeta.IsMine, rec.VMeta.Origin, replier)
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
