package classify

import (
	"encoding/json"

	"lunabot/internal/domain"
)

type rawMention struct {
	UserID int64 `json:"user_id"`
	At     []int `json:"at"`
	Len    int   `json:"len"`
}

// ParseMentionInfo reads the mention fields of a message attachment.
// Any decoding problem yields the zero MentionInfo; it never fails.
func ParseMentionInfo(attachment string) domain.MentionInfo {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal([]byte(attachment), &fields); err != nil {
		return domain.MentionInfo{}
	}

	var info domain.MentionInfo

	if raw, ok := fields["all_mention"]; ok {
		all := &domain.AllMention{At: -1}
		var v struct {
			At *int `json:"at"`
		}
		if err := json.Unmarshal(raw, &v); err == nil && v.At != nil {
			all.At = *v.At
		}
		info.AllMention = all
	}

	if raw, ok := fields["mentions"]; ok {
		var mentions []rawMention
		if err := json.Unmarshal(raw, &mentions); err != nil {
			return domain.MentionInfo{}
		}
		info.Mentions = make([]domain.Mention, 0, len(mentions))
		for _, m := range mentions {
			info.Mentions = append(info.Mentions, domain.Mention{UserID: m.UserID, At: m.At, Len: m.Len})
		}
	}

	return info
}
