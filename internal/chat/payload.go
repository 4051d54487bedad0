package chat

import "github.com/tidwall/gjson"

// Event names sent on the chat stream.
const (
	EventToken     = "token"
	EventMeta      = "meta"
	EventHeartbeat = "heartbeat"
	EventError     = "error"
)

// Token stages.
const (
	StageAssistant = "assistant_response"
	StagePlan      = "study_plan"
	StageToolCall  = "tool_call"
)

// Meta event types.
const (
	MetaSessionStarted          = "session_started"
	MetaContextCommitted        = "context_committed"
	MetaPlanGenerationStarted   = "plan_generation_started"
	MetaPlanGenerationCompleted = "plan_generation_completed"
	MetaSessionFinished         = "session_finished"
)

const defaultToolName = "tool"

// toolLabels maps known tool names to their progress text.
var toolLabels = map[string]string{
	"commit_user_context": "Saving user context...",
}

func toolLabel(tool string) string {
	if label, ok := toolLabels[tool]; ok {
		return label
	}
	return "Running " + tool + "..."
}

// stringField returns the value at path when it is a JSON string.
func stringField(data gjson.Result, path string) (string, bool) {
	v := data.Get(path)
	if v.Type != gjson.String {
		return "", false
	}
	return v.Str, true
}

// messageOf renders an arbitrary payload value as display text.
func messageOf(v gjson.Result, fallback string) string {
	switch {
	case !v.Exists(), v.Type == gjson.Null, v.Type == gjson.False:
		return fallback
	case v.Type == gjson.String:
		if v.Str == "" {
			return fallback
		}
		return v.Str
	case v.IsObject() && len(v.Map()) == 0:
		return fallback
	default:
		return v.Raw
	}
}
