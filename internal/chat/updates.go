package chat

import "github.com/desertthunder/studyctl/internal/models"

// Topic names an update stream on the controller bus.
type Topic string

const (
	TopicNotice    Topic = "notice"
	TopicPartial   Topic = "partial"
	TopicMessage   Topic = "message"
	TopicStreaming Topic = "streaming"
)

// Update is one of [Notice], [PartialChanged], [MessageAppended] or [StreamingChanged].
type Update interface {
	topic() Topic
}

// NoticeKind classifies a [Notice].
type NoticeKind int

const (
	NoticeLoading NoticeKind = iota
	NoticeSuccess
	NoticeError
	NoticeDismiss
)

func (k NoticeKind) String() string {
	switch k {
	case NoticeLoading:
		return "loading"
	case NoticeSuccess:
		return "success"
	case NoticeError:
		return "error"
	case NoticeDismiss:
		return "dismiss"
	default:
		return "unknown"
	}
}

// Notice keys for notices that can later be dismissed.
const (
	NoticeKeyPlan    = "plan"
	NoticeKeySession = "session"
	NoticeKeyStream  = "stream"
)

// ToolNoticeKey returns the notice key used for a running tool.
func ToolNoticeKey(tool string) string {
	return "tool:" + tool
}

// Notice is a transient, user-facing status message.
// A [NoticeDismiss] notice removes the earlier notice with the same key.
type Notice struct {
	Kind   NoticeKind
	Key    string
	Title  string
	Detail string
}

// PartialChanged carries the visible, not yet committed assistant text.
type PartialChanged struct {
	Text string
}

// MessageAppended reports a message added to the transcript at Index.
type MessageAppended struct {
	Message models.ChatMessage
	Index   int
}

// StreamingChanged reports the start and end of a streaming turn.
type StreamingChanged struct {
	Streaming bool
}

func (Notice) topic() Topic           { return TopicNotice }
func (PartialChanged) topic() Topic   { return TopicPartial }
func (MessageAppended) topic() Topic  { return TopicMessage }
func (StreamingChanged) topic() Topic { return TopicStreaming }
