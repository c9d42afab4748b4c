package classify

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"lunabot/internal/domain"
)

type recordingReplier struct {
	chatID  int64
	message string
}

func (r *recordingReplier) Reply(_ context.Context, chatID int64, message string) error {
	r.chatID, r.message = chatID, message
	return nil
}

func (r *recordingReplier) ReplyMedia(_ context.Context, chatID int64, _ []domain.Media) error {
	r.chatID = chatID
	return nil
}

func openRecord() domain.RawChatLog {
	return domain.RawChatLog{
		DBID:                 7,
		LogID:                3_200_000_000_000_000_001,
		Message:              "hello",
		Attachment:           "{}",
		UserID:               42,
		ChatID:               1001,
		RoomType:             domain.OpenChannelRoomType,
		OpenLinkID:           55,
		OpenLinkHostID:       9,
		OpenLinkRoomCoverURL: "https://img/cover.png",
		OpenLinkRoomName:     "Gophers",
		OpenLinkRoomURL:      "https://open/abc",
		CryptoUserNickname:   "crypto",
		FriendsNickname:      "friend",
		OpenNickname:         "open-nick",
		OpenProfileURL:       "https://img/open.png",
		OpenProfileLinkID:    77,
		OpenProfileType:      2,
		OpenLinkMemberType:   1,
		SendAt:               1700000000,
		Type:                 int(domain.MessageTypeText),
		VMeta:                domain.VMeta{IsMine: true, Origin: "MSG"},
	}
}

func encode(t *testing.T, rec domain.RawChatLog) []byte {
	t.Helper()
	data, err := json.Marshal(rec)
	require.NoError(t, err)
	return data
}

func TestClassify_OpenChannel(t *testing.T) {
	res, err := Classify(encode(t, openRecord()), nil)
	require.NoError(t, err)

	chat := res.Chat
	assert.Equal(t, domain.EventMessage, res.Event)
	assert.Nil(t, res.Feed)

	assert.Equal(t, "open-nick", chat.Sender.Nickname)
	assert.Equal(t, "https://img/open.png", chat.Sender.ProfileURL)
	require.NotNil(t, chat.Sender.Open)
	assert.Equal(t, domain.OpenUserExtra{MemberType: 1, ProfileLinkID: 77, ProfileType: 2}, *chat.Sender.Open)

	require.NotNil(t, chat.Channel.Open)
	assert.Equal(t, domain.OpenChannelExtra{
		LinkID:     55,
		LinkURL:    "https://open/abc",
		HostUserID: 9,
		Name:       "Gophers",
		CoverURL:   "https://img/cover.png",
	}, *chat.Channel.Open)

	assert.Equal(t, int64(3_200_000_000_000_000_001), chat.Message.LogID)
	assert.True(t, chat.IsMine)
	assert.Equal(t, "MSG", chat.Origin)
}

func TestClassify_PrivateChannelFallbackChain(t *testing.T) {
	rec := openRecord()
	rec.RoomType = "MultiChat"
	rec.CryptoUserNickname = ""
	rec.CryptoUserProfileURL = "https://img/crypto.png"
	rec.FriendsNickname = "friend"
	rec.FriendsProfileURL = "https://img/friend.png"

	res, err := Classify(encode(t, rec), nil)
	require.NoError(t, err)

	assert.Equal(t, "friend", res.Chat.Sender.Nickname)
	assert.Equal(t, "https://img/crypto.png", res.Chat.Sender.ProfileURL)
	assert.Nil(t, res.Chat.Sender.Open)
	assert.Nil(t, res.Chat.Channel.Open)
}

func TestClassify_PrivateChannelPrefersCryptoUser(t *testing.T) {
	rec := openRecord()
	rec.RoomType = "DirectChat"
	rec.CryptoUserNickname = "crypto"

	res, err := Classify(encode(t, rec), nil)
	require.NoError(t, err)
	assert.Equal(t, "crypto", res.Chat.Sender.Nickname)
}

func TestClassify_InvalidFrame(t *testing.T) {
	_, err := Classify([]byte("{not json"), nil)
	require.Error(t, err)
}

func TestClassify_UnknownMessageType(t *testing.T) {
	rec := openRecord()
	rec.Type = 12345

	res, err := Classify(encode(t, rec), nil)
	require.NoError(t, err)
	assert.Equal(t, domain.MessageTypeUnknown, res.Chat.Message.Type)
	assert.Equal(t, domain.EventMessage, res.Event)
}

func feedRecord(content string) domain.RawChatLog {
	rec := openRecord()
	rec.Type = int(domain.MessageTypeFeed)
	rec.Message = content
	return rec
}

func TestClassify_Feed(t *testing.T) {
	tests := []struct {
		name    string
		content string
		event   domain.EventName
		feed    domain.FeedEvent
	}{
		{
			name:    "user joined",
			content: `{"feedType":4,"members":[{"userId":1,"nickName":"a"},{"userId":2,"nickName":"b"}]}`,
			event:   domain.EventUserJoined,
			feed: domain.UserJoined{
				JoinedUsers: []domain.FeedEventUser{{ID: 1, Nickname: "a"}, {ID: 2, Nickname: "b"}},
				Timestamp:   1700000000,
			},
		},
		{
			name:    "user left",
			content: `{"feedType":2,"member":{"userId":3,"nickName":"c"}}`,
			event:   domain.EventUserLeft,
			feed:    domain.UserLeft{LeftUser: domain.FeedEventUser{ID: 3, Nickname: "c"}, Timestamp: 1700000000},
		},
		{
			name:    "message deleted",
			content: `{"feedType":14,"logId":3100000000000000007}`,
			event:   domain.EventMessageDeleted,
			feed:    domain.MessageDeleted{LogID: 3100000000000000007, Timestamp: 1700000000},
		},
		{
			name:    "message hidden",
			content: `{"feedType":26,"chatLogInfos":[{"logId":10},{"logId":11}]}`,
			event:   domain.EventMessageHidden,
			feed:    domain.MessageHidden{LogIDs: []int64{10, 11}, Timestamp: 1700000000},
		},
		{
			name:    "unknown feed type",
			content: `{"feedType":99}`,
			event:   domain.EventMessage,
		},
		{
			name:    "malformed payload",
			content: `not json`,
			event:   domain.EventMessage,
		},
		{
			name:    "left without member",
			content: `{"feedType":2}`,
			event:   domain.EventMessage,
		},
		{
			name:    "joined without members",
			content: `{"feedType":4}`,
			event:   domain.EventMessage,
		},
		{
			name:    "joined with empty members",
			content: `{"feedType":4,"members":[]}`,
			event:   domain.EventUserJoined,
			feed:    domain.UserJoined{JoinedUsers: []domain.FeedEventUser{}, Timestamp: 1700000000},
		},
		{
			name:    "hidden without chat log infos",
			content: `{"feedType":26}`,
			event:   domain.EventMessage,
		},
		{
			name:    "deleted without log id",
			content: `{"feedType":14}`,
			event:   domain.EventMessage,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := FromRecord(feedRecord(tt.content), nil)
			assert.Equal(t, tt.event, res.Event)
			assert.Equal(t, tt.feed, res.Feed)
		})
	}
}

func TestClassify_KickedCarriesSender(t *testing.T) {
	res := FromRecord(feedRecord(`{"feedType":6,"member":{"userId":5,"nickName":"e"}}`), nil)

	kicked, ok := res.Feed.(domain.UserKicked)
	require.True(t, ok, "expected UserKicked, got %T", res.Feed)
	assert.Equal(t, domain.FeedEventUser{ID: 5, Nickname: "e"}, kicked.KickedUser)
	assert.Equal(t, res.Chat.Sender, kicked.KickedBy)
	assert.Equal(t, domain.EventUserKicked, res.Event)
}

func TestClassify_FeedTypeIgnoredForNonFeedMessages(t *testing.T) {
	rec := openRecord()
	rec.Message = `{"feedType":4,"members":[]}`

	res := FromRecord(rec, nil)
	assert.Equal(t, domain.EventMessage, res.Event)
	assert.Nil(t, res.Feed)
}

func TestClassify_ReplyBoundToChannel(t *testing.T) {
	r := &recordingReplier{}
	res := FromRecord(openRecord(), r)

	require.NoError(t, res.Chat.Reply(context.Background(), "HELLO", 3))
	assert.Equal(t, int64(1001), r.chatID)
	assert.Equal(t, "HELLO 3", r.message)
}

func TestParseMentionInfo(t *testing.T) {
	info := ParseMentionInfo(`{"all_mention":{"at":4},"mentions":[{"user_id":9,"at":[1,3],"len":5}]}`)
	require.NotNil(t, info.AllMention)
	assert.Equal(t, 4, info.AllMention.At)
	assert.Equal(t, []domain.Mention{{UserID: 9, At: []int{1, 3}, Len: 5}}, info.Mentions)
	assert.True(t, info.MentionsUser(9))
}

func TestParseMentionInfo_AllMentionWithoutOffset(t *testing.T) {
	info := ParseMentionInfo(`{"all_mention":{}}`)
	require.NotNil(t, info.AllMention)
	assert.Equal(t, -1, info.AllMention.At)
	assert.Empty(t, info.Mentions)
}

func TestParseMentionInfo_InvalidNeverFails(t *testing.T) {
	for _, attachment := range []string{"", "not json", "[1,2]", `{"mentions":"oops"}`, "null"} {
		info := ParseMentionInfo(attachment)
		assert.Nil(t, info.AllMention, "attachment %q", attachment)
		assert.Empty(t, info.Mentions, "attachment %q", attachment)
	}
}
