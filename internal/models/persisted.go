package models

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Conversation is a saved chat transcript.
type Conversation struct {
	entity
	sessionID string
	title     string
	messages  []ChatMessage
}

// NewConversation creates a [Conversation] holding a copy of messages.
func NewConversation(sequence int, sessionID, title string, messages []ChatMessage) *Conversation {
	return &Conversation{
		entity:    newEntity(sequence),
		sessionID: sessionID,
		title:     title,
		messages:  append([]ChatMessage(nil), messages...),
	}
}

func (c *Conversation) SessionID() string { return c.sessionID }
func (c *Conversation) Title() string     { return c.title }

// Messages returns a copy of the transcript.
func (c *Conversation) Messages() []ChatMessage {
	return append([]ChatMessage(nil), c.messages...)
}

func (c *Conversation) SetTitle(title string)         { c.title = title }
func (c *Conversation) SetSessionID(sessionID string) { c.sessionID = sessionID }

// AppendMessages adds messages to the end of the transcript.
func (c *Conversation) AppendMessages(messages ...ChatMessage) {
	c.messages = append(c.messages, messages...)
}

func (c *Conversation) Validate() error {
	if strings.TrimSpace(c.title) == "" {
		return fmt.Errorf("conversation title is required")
	}
	for i, m := range c.messages {
		if err := m.Validate(); err != nil {
			return fmt.Errorf("message %d: %w", i, err)
		}
	}
	return nil
}

// TitleFrom derives a conversation title from its first user message.
func TitleFrom(messages []ChatMessage, max int) string {
	for _, m := range messages {
		if m.Role != RoleUser {
			continue
		}
		title := strings.Join(strings.Fields(m.Content), " ")
		if r := []rune(title); max > 0 && len(r) > max {
			title = string(r[:max])
		}
		if title != "" {
			return title
		}
	}
	return "Untitled conversation"
}

// JobRecord is the last known state of a monitored job.
type JobRecord struct {
	entity
	jobID   string
	kind    string
	status  JobStatus
	message string
	err     string
	result  json.RawMessage
}

// NewJobRecord creates a [JobRecord] for jobID. kind describes what started the job (e.g. "day", "section").
func NewJobRecord(sequence int, jobID, kind string) *JobRecord {
	return &JobRecord{entity: newEntity(sequence), jobID: jobID, kind: kind, status: JobRunning}
}

func (j *JobRecord) JobID() string           { return j.jobID }
func (j *JobRecord) Kind() string            { return j.kind }
func (j *JobRecord) Status() JobStatus       { return j.status }
func (j *JobRecord) Message() string         { return j.message }
func (j *JobRecord) ErrorMessage() string    { return j.err }
func (j *JobRecord) Result() json.RawMessage { return j.result }

func (j *JobRecord) SetKind(kind string)        { j.kind = kind }
func (j *JobRecord) SetStatus(status JobStatus) { j.status = status }
func (j *JobRecord) SetMessage(message string)  { j.message = message }
func (j *JobRecord) SetError(err string)        { j.err = err }
func (j *JobRecord) SetResult(result json.RawMessage) {
	j.result = result
}

func (j *JobRecord) Validate() error {
	if strings.TrimSpace(j.jobID) == "" {
		return fmt.Errorf("job id is required")
	}
	switch j.status {
	case JobIdle, JobRunning, JobSucceeded, JobFailed:
	default:
		return fmt.Errorf("invalid job status %q", j.status)
	}
	if len(j.result) > 0 && !json.Valid(j.result) {
		return fmt.Errorf("job result is not valid JSON")
	}
	return nil
}
