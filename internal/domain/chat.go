package domain

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// ErrNoReplier is returned when a ChatContext was built without a reply capability.
var ErrNoReplier = errors.New("chat context has no replier")

// OpenChannelRoomType is the channel-type discriminator of open (link-based) channels.
const OpenChannelRoomType = "OM"

// Replier posts replies into a channel on the gateway.
type Replier interface {
	Reply(ctx context.Context, chatID int64, message string) error
	ReplyMedia(ctx context.Context, chatID int64, media []Media) error
}

// Media is one binary attachment of a media reply.
type Media struct {
	Data     []byte
	Filename string // optional, the gateway client assigns file_<i> when empty
	MimeType string // optional
}

// Bytes wraps raw bytes as an anonymous Media item.
func Bytes(data []byte) Media { return Media{Data: data} }

// ChatContext is the per-message snapshot handed to handlers.
// It is built once by the classifier and never mutated afterwards.
type ChatContext struct {
	Sender  User
	Channel Channel
	Message Message
	IsMine  bool
	Origin  string

	replier Replier
}

// NewChatContext builds a ChatContext whose replies are bound to channel.ID.
func NewChatContext(sender User, channel Channel, message Message, isMine bool, origin string, replier Replier) *ChatContext {
	return &ChatContext{
		Sender:  sender,
		Channel: channel,
		Message: message,
		IsMine:  isMine,
		Origin:  origin,
		replier: replier,
	}
}

// Reply posts values joined by a single space to the message's channel.
func (c *ChatContext) Reply(ctx context.Context, values ...any) error {
	return c.ReplySep(ctx, " ", values...)
}

// ReplySep posts values joined by sep. An empty sep concatenates them.
func (c *ChatContext) ReplySep(ctx context.Context, sep string, values ...any) error {
	if c.replier == nil {
		return ErrNoReplier
	}
	parts := make([]string, len(values))
	for i, v := range values {
		parts[i] = fmt.Sprint(v)
	}
	return c.replier.Reply(ctx, c.Channel.ID, strings.Join(parts, sep))
}

// ReplyMedia uploads one or more attachments to the message's channel.
func (c *ChatContext) ReplyMedia(ctx context.Context, media ...Media) error {
	if c.replier == nil {
		return ErrNoReplier
	}
	if len(media) == 0 {
		return errors.New("reply media: no media given")
	}
	return c.replier.ReplyMedia(ctx, c.Channel.ID, media)
}

// User is the sender of a message.
type User struct {
	ID         int64
	Nickname   string
	ProfileURL string

	// Open is set only for messages from open channels.
	Open *OpenUserExtra
}

// OpenUserExtra carries open-channel profile data of a sender.
type OpenUserExtra struct {
	MemberType    int
	ProfileLinkID int64
	ProfileType   int
}

// Channel is the chat room a message was posted in.
type Channel struct {
	ID          int64
	Type        string
	PrivateMeta map[string]any

	// Open is set only when Type is OpenChannelRoomType.
	Open *OpenChannelExtra
}

// IsOpen reports whether the channel is an open (link-based) channel.
func (c Channel) IsOpen() bool { return c.Type == OpenChannelRoomType }

// OpenChannelExtra carries the link metadata of an open channel.
type OpenChannelExtra struct {
	LinkID     int64
	LinkURL    string
	HostUserID int64
	Name       string
	CoverURL   string
}

// Message is the content part of a chat log.
type Message struct {
	DBID        int64
	LogID       int64
	SendAt      int64
	Type        MessageType
	Content     string
	Attachment  string
	MentionInfo MentionInfo
}

// MentionInfo lists the mentions carried in a message attachment.
// The zero value means "no mentions".
type MentionInfo struct {
	AllMention *AllMention
	Mentions   []Mention
}

// AllMention marks a mention of everyone in the channel.
type AllMention struct {
	At int
}

// Mention is a reference to a single user inside the message text.
type Mention struct {
	UserID int64
	At     []int
	Len    int
}

// MentionsUser reports whether userID is mentioned individually.
func (m MentionInfo) MentionsUser(userID int64) bool {
	for _, mention := range m.Mentions {
		if mention.UserID == userID {
			return true
		}
	}
	return false
}
