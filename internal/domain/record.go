package domain

// RawChatLog is one inbound gateway frame. Encrypted text fields arrive
// already decrypted by the gateway.
type RawChatLog struct {
	DBID       int64  `json:"db_id"`
	LogID      int64  `json:"log_id"`
	Message    string `json:"message"`
	Attachment string `json:"attachment"`

	UserID int64 `json:"user_id"`

	ChatID          int64          `json:"chat_id"`
	RoomPrivateMeta map[string]any `json:"room_private_meta"`
	RoomType        string         `json:"room_type"`

	OpenLinkID           int64  `json:"openlink_id"`
	OpenLinkHostID       int64  `json:"openlink_host_id"`
	OpenLinkRoomCoverURL string `json:"openlink_room_cover_url"`
	OpenLinkRoomName     string `json:"openlink_room_name"`
	OpenLinkRoomURL      string `json:"openlink_room_url"`

	CryptoUserNickname   string `json:"crypto_user_nickname"`
	CryptoUserProfileURL string `json:"crypto_user_profile_url"`

	FriendsNickname   string `json:"friends_nickname"`
	FriendsProfileURL string `json:"friends_profile_url"`

	OpenNickname   string `json:"open_nickname"`
	OpenProfileURL string `json:"open_profile_url"`

	OpenProfileLinkID  int64 `json:"open_profile_link_id"`
	OpenProfileType    int   `json:"open_profile_type"`
	OpenLinkMemberType int   `json:"open_link_member_type"`

	SendAt int64 `json:"send_at"`
	Type   int   `json:"type"`

	VMeta VMeta `json:"v_meta"`
}

// VMeta is the metadata blob attached to every frame.
type VMeta struct {
	IsMine bool   `json:"isMine"`
	Origin string `json:"origin"`
}

// ChatLog is the row shape returned by chat-log lookups through the query endpoint.
type ChatLog struct {
	DBID       int64  `json:"db_id"`
	LogID      int64  `json:"log_id"`
	ChatID     int64  `json:"chat_id"`
	UserID     int64  `json:"user_id"`
	Nickname   string `json:"nickname"`
	Type       int    `json:"type"`
	Message    string `json:"message"`
	Attachment string `json:"attachment"`
	SentAt     int64  `json:"sent_at"`
}
