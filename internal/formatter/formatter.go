// package formatter provides functions to export chat transcripts and study plans to various formats (CSV, Markdown, plain text, JSON)
package formatter

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/desertthunder/studyctl/internal/models"
	"github.com/desertthunder/studyctl/internal/shared"
)

// Format is an export file format.
type Format string

const (
	FormatMarkdown Format = "markdown"
	FormatText     Format = "txt"
	FormatCSV      Format = "csv"
	FormatJSON     Format = "json"
)

// ParseFormat parses a format name. "md" and "text" are accepted as aliases.
func ParseFormat(s string) (Format, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "markdown", "md":
		return FormatMarkdown, nil
	case "txt", "text":
		return FormatText, nil
	case "csv":
		return FormatCSV, nil
	case "json":
		return FormatJSON, nil
	default:
		return "", fmt.Errorf("%w: unknown export format %q", shared.ErrInvalidFlag, s)
	}
}

// Extension returns the file extension used for the format.
func (f Format) Extension() string {
	switch f {
	case FormatMarkdown:
		return ".md"
	case FormatCSV:
		return ".csv"
	case FormatJSON:
		return ".json"
	default:
		return ".txt"
	}
}

// ExportToCSV converts a Conversation to CSV format with columns: Position, Role, Content
func ExportToCSV(conv *models.Conversation) ([]byte, error) {
	var buf bytes.Buffer
	writer := csv.NewWriter(&buf)

	headers := []string{"Position", "Role", "Content"}
	if err := writer.Write(headers); err != nil {
		return nil, fmt.Errorf("failed to write CSV headers: %w", err)
	}

	for i, msg := range conv.Messages() {
		record := []string{strconv.Itoa(i + 1), string(msg.Role), msg.Content}
		if err := writer.Write(record); err != nil {
			return nil, fmt.Errorf("failed to write CSV record: %w", err)
		}
	}

	writer.Flush()
	if err := writer.Error(); err != nil {
		return nil, fmt.Errorf("CSV writer error: %w", err)
	}

	return buf.Bytes(), nil
}

// ExportToMarkdown converts a Conversation to Markdown with one section per message
func ExportToMarkdown(conv *models.Conversation) ([]byte, error) {
	var buf bytes.Buffer

	buf.WriteString(fmt.Sprintf("# %s\n\n", conv.Title()))
	buf.WriteString(fmt.Sprintf("**Saved**: %s\n", conv.CreatedAt().Format(time.DateTime)))
	if conv.SessionID() != "" {
		buf.WriteString(fmt.Sprintf("**Session**: %s\n", conv.SessionID()))
	}
	buf.WriteString(fmt.Sprintf("**Messages**: %d\n\n", len(conv.Messages())))

	for _, msg := range conv.Messages() {
		buf.WriteString(fmt.Sprintf("## %s\n\n", roleLabel(msg.Role)))
		buf.WriteString(strings.TrimSpace(msg.Content))
		buf.WriteString("\n\n")
	}

	return buf.Bytes(), nil
}

// ExportToText converts a Conversation to plain text format
func ExportToText(conv *models.Conversation) ([]byte, error) {
	var buf bytes.Buffer

	buf.WriteString(fmt.Sprintf("Conversation: %s\n", conv.Title()))
	buf.WriteString(fmt.Sprintf("Messages: %d\n\n", len(conv.Messages())))

	for _, msg := range conv.Messages() {
		buf.WriteString(fmt.Sprintf("%s: %s\n\n", roleLabel(msg.Role), strings.TrimSpace(msg.Content)))
	}

	return buf.Bytes(), nil
}

type conversationJSON struct {
	ID        string               `json:"id"`
	Title     string               `json:"title"`
	SessionID string               `json:"session_id,omitempty"`
	CreatedAt time.Time            `json:"created_at"`
	Messages  []models.ChatMessage `json:"messages"`
}

// ExportToJSON converts a Conversation to indented JSON
func ExportToJSON(conv *models.Conversation) ([]byte, error) {
	data, err := json.MarshalIndent(conversationJSON{
		ID:        conv.ID(),
		Title:     conv.Title(),
		SessionID: conv.SessionID(),
		CreatedAt: conv.CreatedAt(),
		Messages:  conv.Messages(),
	}, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to marshal conversation: %w", err)
	}
	return data, nil
}

// Export renders a conversation in the given format.
func Export(conv *models.Conversation, format Format) ([]byte, error) {
	switch format {
	case FormatMarkdown:
		return ExportToMarkdown(conv)
	case FormatCSV:
		return ExportToCSV(conv)
	case FormatJSON:
		return ExportToJSON(conv)
	case FormatText:
		return ExportToText(conv)
	default:
		return nil, fmt.Errorf("%w: unknown export format %q", shared.ErrInvalidFlag, format)
	}
}

// WriteExport exports a conversation to path and returns the path written.
//
// Defaults to conversation_{sequence}{ext} in the working directory. Parent directories are created as needed.
func WriteExport(conv *models.Conversation, format Format, path string) (string, error) {
	if path == "" {
		path = fmt.Sprintf("conversation_%d%s", conv.Sequence(), format.Extension())
	}

	data, err := Export(conv, format)
	if err != nil {
		return "", err
	}

	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return "", fmt.Errorf("failed to create directory: %w", err)
		}
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return "", fmt.Errorf("failed to write export file: %w", err)
	}

	return path, nil
}

// PlanToText renders a study plan as an outline of weeks, days and tasks
func PlanToText(plan *models.StudyPlan) string {
	var buf strings.Builder

	buf.WriteString(fmt.Sprintf("%s [%s]\n", plan.Title, models.StatusBadge(plan.Status, plan.GenerationStatus)))
	if plan.Summary != "" {
		buf.WriteString(plan.Summary + "\n")
	}
	if plan.LastError != "" {
		buf.WriteString(fmt.Sprintf("Last error: %s\n", plan.LastError))
	}
	buf.WriteString(fmt.Sprintf("Days: %d\n", plan.TotalDays))

	if len(plan.Weeks) > 0 {
		for _, week := range plan.Weeks {
			title := week.Title
			if title == "" {
				title = fmt.Sprintf("Week %d", week.WeekIndex)
			}
			buf.WriteString(fmt.Sprintf("\n%s\n", title))
			for _, day := range week.Days {
				writeDay(&buf, day)
			}
		}
		return buf.String()
	}

	buf.WriteString("\n")
	for _, day := range plan.Days {
		writeDay(&buf, day)
	}
	return buf.String()
}

func writeDay(buf *strings.Builder, day models.StudyDay) {
	buf.WriteString(fmt.Sprintf("  Day %d: %s (%s)", day.DayIndex, day.Title, day.ID))
	if day.TargetMinutes > 0 {
		buf.WriteString(fmt.Sprintf(" %d min", day.TargetMinutes))
	}
	if day.GenerationStatus != nil && *day.GenerationStatus != "" && *day.GenerationStatus != models.GenerationCompleted {
		buf.WriteString(fmt.Sprintf(" [%s]", *day.GenerationStatus))
	}
	buf.WriteString("\n")

	for _, task := range day.Tasks {
		buf.WriteString(fmt.Sprintf("    - %s (%s, %d min)\n", task.Title, task.TaskType, task.DurationMinutes))
	}
}

func roleLabel(r models.Role) string {
	switch r {
	case models.RoleUser:
		return "You"
	case models.RoleAssistant:
		return "Assistant"
	case models.RoleSystem:
		return "System"
	default:
		return string(r)
	}
}
