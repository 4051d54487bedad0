package main

import (
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/studyctl/internal/chat"
	"github.com/desertthunder/studyctl/internal/formatter"
	"github.com/desertthunder/studyctl/internal/models"
	"github.com/desertthunder/studyctl/internal/shared"
	"github.com/urfave/cli/v3"
)

// titleLength bounds titles derived from the first user message.
const titleLength = 60

// ChatSend sends one message and prints the answer, streaming it as it arrives unless --no-stream is set.
func (r *Runner) ChatSend(ctx context.Context, cmd *cli.Command) error {
	message := strings.TrimSpace(strings.Join(cmd.Args().Slice(), " "))
	if message == "" {
		return fmt.Errorf("%w: message is required", shared.ErrMissingArgument)
	}

	controller, err := r.newController()
	if err != nil {
		return err
	}

	var conv *models.Conversation
	if id := cmd.String("resume"); id != "" {
		repo, err := r.conversations()
		if err != nil {
			return err
		}
		if conv, err = repo.Get(id); err != nil {
			return err
		}
		if err := controller.Restore(conv.Messages(), conv.SessionID()); err != nil {
			return err
		}
		r.logger.Debug("resumed conversation", "id", conv.ID(), "messages", len(conv.Messages()))
	}
	start := len(controller.Messages())

	printer := &answerPrinter{w: r.output, logger: r.logger}
	unsubscribe := controller.Bus().SubscribeAll(func(_ chat.Topic, u chat.Update) { printer.handle(u) })
	defer unsubscribe()

	if err := controller.Send(ctx, message, !cmd.Bool("no-stream")); err != nil {
		return err
	}
	if ctx.Err() != nil {
		return ctx.Err()
	}

	if !cmd.Bool("save") {
		return nil
	}
	return r.saveTurn(conv, controller.Messages()[start:], controller.SessionID(), controller.Messages())
}

// saveTurn appends the new messages to a resumed conversation or saves the whole transcript as a new one.
func (r *Runner) saveTurn(conv *models.Conversation, added []models.ChatMessage, sessionID string, all []models.ChatMessage) error {
	repo, err := r.conversations()
	if err != nil {
		return err
	}

	if conv != nil {
		if err := repo.AppendMessages(conv.ID(), added...); err != nil {
			return err
		}
		if sessionID != "" && sessionID != conv.SessionID() {
			conv.SetSessionID(sessionID)
			if err := repo.Update(conv); err != nil {
				return err
			}
		}
		return r.writePlainln("✓ Conversation updated: %s", conv.ID())
	}

	conv = models.NewConversation(0, sessionID, models.TitleFrom(all, titleLength), all)
	if err := repo.Create(conv); err != nil {
		return err
	}
	return r.writePlainln("✓ Conversation saved: %s", conv.ID())
}

// answerPrinter writes the assistant's answer to w as controller updates arrive.
//
// Updates are delivered one at a time by the controller, so no locking is needed.
type answerPrinter struct {
	w       io.Writer
	logger  *log.Logger
	printed string
}

func (p *answerPrinter) handle(u chat.Update) {
	switch u := u.(type) {
	case chat.PartialChanged:
		p.write(u.Text)
	case chat.MessageAppended:
		if u.Message.Role != models.RoleAssistant {
			return
		}
		p.write(u.Message.Content)
		fmt.Fprintln(p.w)
		p.printed = ""
	case chat.Notice:
		switch u.Kind {
		case chat.NoticeLoading:
			p.logger.Info(u.Title, "detail", u.Detail)
		case chat.NoticeSuccess:
			p.logger.Info(u.Title)
		case chat.NoticeError:
			p.logger.Error(u.Title, "detail", u.Detail)
		}
	}
}

// write prints the part of text not yet printed.
func (p *answerPrinter) write(text string) {
	if text == "" {
		return
	}
	if strings.HasPrefix(text, p.printed) {
		io.WriteString(p.w, text[len(p.printed):])
	} else {
		fmt.Fprintf(p.w, "\n%s", text)
	}
	p.printed = text
}

// HistoryList lists saved conversations, newest first.
func (r *Runner) HistoryList(ctx context.Context, cmd *cli.Command) error {
	repo, err := r.conversations()
	if err != nil {
		return err
	}

	convs, err := repo.List(map[string]any{
		"limit":      cmd.Int("limit"),
		"session_id": cmd.String("session"),
	})
	if err != nil {
		return err
	}

	if cmd.Bool("json") {
		type summary struct {
			ID        string    `json:"id"`
			Sequence  int       `json:"sequence"`
			Title     string    `json:"title"`
			SessionID string    `json:"session_id,omitempty"`
			Messages  int       `json:"messages"`
			UpdatedAt time.Time `json:"updated_at"`
		}
		out := make([]summary, 0, len(convs))
		for _, c := range convs {
			out = append(out, summary{c.ID(), c.Sequence(), c.Title(), c.SessionID(), len(c.Messages()), c.UpdatedAt()})
		}
		return r.writeJSON(out, true)
	}

	if len(convs) == 0 {
		return r.writePlain("No saved conversations\n")
	}

	r.writePlainHeader(fmt.Sprintf("Saved conversations (%d)", len(convs)))
	for _, c := range convs {
		r.writePlain("%3d. %s\n", c.Sequence(), c.Title())
		r.writePlain("     %s • %d messages • %s\n", c.ID(), len(c.Messages()), c.UpdatedAt().Format(time.DateTime))
	}
	return nil
}

// HistoryShow prints a saved conversation.
func (r *Runner) HistoryShow(ctx context.Context, cmd *cli.Command) error {
	conv, err := r.loadConversation(cmd)
	if err != nil {
		return err
	}

	data, err := formatter.ExportToText(conv)
	if err != nil {
		return err
	}
	if _, err := r.output.Write(data); err != nil {
		return fmt.Errorf("failed to write output: %w", err)
	}
	return nil
}

// HistoryExport writes a saved conversation to a file.
func (r *Runner) HistoryExport(ctx context.Context, cmd *cli.Command) error {
	format, err := formatter.ParseFormat(cmd.String("format"))
	if err != nil {
		return err
	}

	conv, err := r.loadConversation(cmd)
	if err != nil {
		return err
	}

	path, err := formatter.WriteExport(conv, format, cmd.String("output"))
	if err != nil {
		return err
	}

	r.logger.Info("conversation exported", "id", conv.ID(), "format", format, "path", path)
	return r.writePlain("✓ Exported to %s\n", path)
}

// HistoryDelete removes a saved conversation.
func (r *Runner) HistoryDelete(ctx context.Context, cmd *cli.Command) error {
	id := cmd.StringArg("id")
	if id == "" {
		return fmt.Errorf("%w: conversation id is required", shared.ErrMissingArgument)
	}

	repo, err := r.conversations()
	if err != nil {
		return err
	}
	if err := repo.Delete(id); err != nil {
		return err
	}
	return r.writePlain("✓ Deleted conversation %s\n", id)
}

func (r *Runner) loadConversation(cmd *cli.Command) (*models.Conversation, error) {
	id := cmd.StringArg("id")
	if id == "" {
		return nil, fmt.Errorf("%w: conversation id is required", shared.ErrMissingArgument)
	}

	repo, err := r.conversations()
	if err != nil {
		return nil, err
	}
	return repo.Get(id)
}
