package domain

import "strconv"

// MessageType is the message-kind code of a chat log.
// Codes outside the known set map to MessageTypeUnknown.
type MessageType int

const (
	MessageTypeUnknown             MessageType = -999
	MessageTypeFeed                MessageType = 0
	MessageTypeText                MessageType = 1
	MessageTypePhoto               MessageType = 2
	MessageTypeVideo               MessageType = 3
	MessageTypeContact             MessageType = 4
	MessageTypeAudio               MessageType = 5
	MessageTypeAnimatedEmoticon    MessageType = 6
	MessageTypeDigitalItemGift     MessageType = 7
	MessageTypeLink                MessageType = 9
	MessageTypeOldLocation         MessageType = 10
	MessageTypeAvatar              MessageType = 11
	MessageTypeSticker             MessageType = 12
	MessageTypeSchedule            MessageType = 13
	MessageTypeVote                MessageType = 14
	MessageTypeLocation            MessageType = 16
	MessageTypeProfile             MessageType = 17
	MessageTypeFile                MessageType = 18
	MessageTypeAnimatedSticker     MessageType = 20
	MessageTypeNudge               MessageType = 21
	MessageTypeSpritecon           MessageType = 22
	MessageTypeSharpSearch         MessageType = 23
	MessageTypePost                MessageType = 24
	MessageTypeAnimatedStickerEx   MessageType = 25
	MessageTypeReply               MessageType = 26
	MessageTypeMultiPhoto          MessageType = 27
	MessageTypeMVoIP               MessageType = 51
	MessageTypeVoxRoom             MessageType = 52
	MessageTypeLeverage            MessageType = 71
	MessageTypeAlimtalk            MessageType = 72
	MessageTypePlusLeverage        MessageType = 73
	MessageTypePlus                MessageType = 81
	MessageTypePlusEvent           MessageType = 82
	MessageTypePlusViral           MessageType = 83
	MessageTypeScheduleForOpenLink MessageType = 96
	MessageTypeVoteForOpenLink     MessageType = 97
	MessageTypePostForOpenLink     MessageType = 98
)

var messageTypeNames = map[MessageType]string{
	MessageTypeUnknown:             "UNKNOWN",
	MessageTypeFeed:                "FEED",
	MessageTypeText:                "TEXT",
	MessageTypePhoto:               "PHOTO",
	MessageTypeVideo:               "VIDEO",
	MessageTypeContact:             "CONTACT",
	MessageTypeAudio:               "AUDIO",
	MessageTypeAnimatedEmoticon:    "ANIMATED_EMOTICON",
	MessageTypeDigitalItemGift:     "DIGITAL_ITEM_GIFT",
	MessageTypeLink:                "LINK",
	MessageTypeOldLocation:         "OLD_LOCATION",
	MessageTypeAvatar:              "AVATAR",
	MessageTypeSticker:             "STICKER",
	MessageTypeSchedule:            "SCHEDULE",
	MessageTypeVote:                "VOTE",
	MessageTypeLocation:            "LOCATION",
	MessageTypeProfile:             "PROFILE",
	MessageTypeFile:                "FILE",
	MessageTypeAnimatedSticker:     "ANIMATED_STICKER",
	MessageTypeNudge:               "NUDGE",
	MessageTypeSpritecon:           "SPRITECON",
	MessageTypeSharpSearch:         "SHARP_SEARCH",
	MessageTypePost:                "POST",
	MessageTypeAnimatedStickerEx:   "ANIMATED_STICKER_EX",
	MessageTypeReply:               "REPLY",
	MessageTypeMultiPhoto:          "MULTI_PHOTO",
	MessageTypeMVoIP:               "MVOIP",
	MessageTypeVoxRoom:             "VOX_ROOM",
	MessageTypeLeverage:            "LEVERAGE",
	MessageTypeAlimtalk:            "ALIMTALK",
	MessageTypePlusLeverage:        "PLUS_LEVERAGE",
	MessageTypePlus:                "PLUS",
	MessageTypePlusEvent:           "PLUS_EVENT",
	MessageTypePlusViral:           "PLUS_VIRAL",
	MessageTypeScheduleForOpenLink: "SCHEDULE_FOR_OPEN_LINK",
	MessageTypeVoteForOpenLink:     "VOTE_FOR_OPEN_LINK",
	MessageTypePostForOpenLink:     "POST_FOR_OPEN_LINK",
}

// ParseMessageType maps a wire code to a MessageType. It never fails:
// the gateway may introduce kinds before the client knows them.
func ParseMessageType(code int) MessageType {
	t := MessageType(code)
	if _, ok := messageTypeNames[t]; ok {
		return t
	}
	return MessageTypeUnknown
}

func (t MessageType) String() string {
	if name, ok := messageTypeNames[t]; ok {
		return name
	}
	return "MessageType(" + strconv.Itoa(int(t)) + ")"
}

// FeedType is the discriminator of a feed payload.
type FeedType int

const (
	FeedTypeUnknown        FeedType = -9999
	FeedTypeUserLeft       FeedType = 2
	FeedTypeUserJoined     FeedType = 4
	FeedTypeUserKicked     FeedType = 6
	FeedTypeMessageDeleted FeedType = 14
	FeedTypeMessageHidden  FeedType = 26
)

// ParseFeedType maps a wire code to a FeedType, degrading to FeedTypeUnknown.
func ParseFeedType(code int) FeedType {
	switch t := FeedType(code); t {
	case FeedTypeUserLeft, FeedTypeUserJoined, FeedTypeUserKicked,
		FeedTypeMessageDeleted, FeedTypeMessageHidden:
		return t
	}
	return FeedTypeUnknown
}

func (t FeedType) String() string {
	switch t {
	case FeedTypeUserLeft:
		return "USER_LEFT"
	case FeedTypeUserJoined:
		return "USER_JOINED"
	case FeedTypeUserKicked:
		return "USER_KICKED"
	case FeedTypeMessageDeleted:
		return "MESSAGE_DELETED"
	case FeedTypeMessageHidden:
		return "MESSAGE_HIDDEN"
	}
	return "UNKNOWN"
}
