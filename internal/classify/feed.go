package classify

import (
	"encoding/json"

	"lunabot/internal/domain"
)

type feedMember struct {
	UserID   int64  `json:"userId"`
	Nickname string `json:"nickName"`
}

func (m feedMember) user() domain.FeedEventUser {
	return domain.FeedEventUser{ID: m.UserID, Nickname: m.Nickname}
}

type feedPayload struct {
	FeedType     int           `json:"feedType"`
	Members      *[]feedMember `json:"members"`
	Member       *feedMember   `json:"member"`
	LogID        *int64        `json:"logId"`
	ChatLogInfos *[]struct {
		LogID int64 `json:"logId"`
	} `json:"chatLogInfos"`
}

// parseFeed maps a feed payload to its typed event. Payloads that do not
// decode, carry an unknown feed type, or lack the variant's required field
// yield nil and the message stays a generic "message". Hidden-message feeds
// are read from chatLogInfos only; payloads without that list are not typed.
func parseFeed(content string, sender domain.User, timestamp int64) domain.FeedEvent {
	var p feedPayload
	if err := json.Unmarshal([]byte(content), &p); err != nil {
		return nil
	}

	switch domain.ParseFeedType(p.FeedType) {
	case domain.FeedTypeUserJoined:
		if p.Members == nil {
			return nil
		}
		joined := make([]domain.FeedEventUser, 0, len(*p.Members))
		for _, m := range *p.Members {
			joined = append(joined, m.user())
		}
		return domain.UserJoined{JoinedUsers: joined, Timestamp: timestamp}

	case domain.FeedTypeUserLeft:
		if p.Member == nil {
			return nil
		}
		return domain.UserLeft{LeftUser: p.Member.user(), Timestamp: timestamp}

	case domain.FeedTypeUserKicked:
		if p.Member == nil {
			return nil
		}
		return domain.UserKicked{KickedUser: p.Member.user(), KickedBy: sender, Timestamp: timestamp}

	case domain.FeedTypeMessageDeleted:
		if p.LogID == nil {
			return nil
		}
		return domain.MessageDeleted{LogID: *p.LogID, Timestamp: timestamp}

	case domain.FeedTypeMessageHidden:
		if p.ChatLogInfos == nil {
			return nil
		}
		ids := make([]int64, 0, len(*p.ChatLogInfos))
		for _, info := range *p.ChatLogInfos {
			ids = append(ids, info.LogID)
		}
		return domain.MessageHidden{LogIDs: ids, Timestamp: timestamp}
	}
	return nil
}
