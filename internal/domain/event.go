package domain

// EventName is the routing key handlers are registered under.
type EventName string

const (
	// EventChat fires for every message, before the specific event.
	EventChat           EventName = "chat"
	EventMessage        EventName = "message"
	EventUserJoined     EventName = "user_joined"
	EventUserLeft       EventName = "user_left"
	EventUserKicked     EventName = "user_kicked"
	EventMessageDeleted EventName = "message_deleted"
	EventMessageHidden  EventName = "message_hidden"
)

// EventNames lists every routable event name.
var EventNames = []EventName{
	EventChat,
	EventMessage,
	EventUserJoined,
	EventUserLeft,
	EventUserKicked,
	EventMessageDeleted,
	EventMessageHidden,
}

// Valid reports whether n is one of EventNames.
func (n EventName) Valid() bool {
	for _, known := range EventNames {
		if n == known {
			return true
		}
	}
	return false
}

// FeedEvent is a system-generated chat event. The set of implementations is
// closed: UserJoined, UserLeft, UserKicked, MessageDeleted and MessageHidden.
type FeedEvent interface {
	EventName() EventName
	feedEvent()
}

// FeedEventUser is a member referenced by a feed payload.
type FeedEventUser struct {
	ID       int64
	Nickname string
}

type UserJoined struct {
	JoinedUsers []FeedEventUser
	Timestamp   int64
}

type UserLeft struct {
	LeftUser  FeedEventUser
	Timestamp int64
}

type UserKicked struct {
	KickedUser FeedEventUser
	KickedBy   User
	Timestamp  int64
}

type MessageDeleted struct {
	LogID     int64
	Timestamp int64
}

type MessageHidden struct {
	LogIDs    []int64
	Timestamp int64
}

func (UserJoined) EventName() EventName     { return EventUserJoined }
func (UserLeft) EventName() EventName       { return EventUserLeft }
func (UserKicked) EventName() EventName     { return EventUserKicked }
func (MessageDeleted) EventName() EventName { return EventMessageDeleted }
func (MessageHidden) EventName() EventName  { return EventMessageHidden }

func (UserJoined) feedEvent()     {}
func (UserLeft) feedEvent()       {}
func (UserKicked) feedEvent()     {}
func (MessageDeleted) feedEvent() {}
func (MessageHidden) feedEvent()  {}
