package notify

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/jomei/notionapi"

	"tapline/internal/domain"
	"tapline/internal/events"
)

// Pages is the part of the Notion page API the exporter uses.
type Pages interface {
	Create(ctx context.Context, req *notionapi.PageCreateRequest) (*notionapi.Page, error)
	Update(ctx context.Context, id notionapi.PageID, req *notionapi.PageUpdateRequest) (*notionapi.Page, error)
}

// Notion mirrors each session into a database page.
type Notion struct {
	Pages      Pages
	DatabaseID string
	Recorder   Recorder
	Logger     *slog.Logger
}

func NewNotion(apiKey, databaseID string, rec Recorder, logger *slog.Logger) *Notion {
	client := notionapi.NewClient(notionapi.Token(apiKey))
	return &Notion{Pages: client.Page, DatabaseID: databaseID, Recorder: rec, Logger: logger}
}

func (n *Notion) Register(bus *events.Bus) {
	bus.Subscribe("notion.create", n.IntakeCompleted, events.IntakeCompleted)
	bus.Subscribe("notion.update", n.SessionChanged, events.SessionChannelLinked, events.SynthesisCompleted, events.SessionClosed)
}

// IntakeCompleted creates the session page and records its id.
func (n *Notion) IntakeCompleted(ctx context.Context, e events.Event) error {
	s := e.Session
	if s.NotionPageID != "" {
		return nil
	}
	page, err := n.Pages.Create(ctx, &notionapi.PageCreateRequest{
		Parent: notionapi.Parent{
			Type:       notionapi.ParentTypeDatabaseID,
			DatabaseID: notionapi.DatabaseID(n.DatabaseID),
		},
		Properties: pageProperties(s),
		Children: []notionapi.Block{
			notionapi.Heading1Block{
				BasicBlock: notionapi.BasicBlock{Object: notionapi.ObjectTypeBlock, Type: notionapi.BlockTypeHeading1},
				Heading1:   notionapi.Heading{RichText: richText(s.RoleTitle() + ": Intake Analysis")},
			},
			notionapi.ParagraphBlock{
				BasicBlock: notionapi.BasicBlock{Object: notionapi.ObjectTypeBlock, Type: notionapi.BlockTypeParagraph},
				Paragraph:  notionapi.Paragraph{RichText: richText(analysisSummary(s))},
			},
		},
	})
	if err != nil {
		return fmt.Errorf("create notion page: %w", err)
	}
	if _, err := n.Recorder.SetNotionPage(ctx, s.ID, string(page.ID)); err != nil {
		return fmt.Errorf("store notion page: %w", err)
	}
	loggerOr(n.Logger).Info("notion page created", "session_id", s.ID, "page_id", page.ID)
	return nil
}

// SessionChanged refreshes the phase and slack channel properties.
func (n *Notion) SessionChanged(ctx context.Context, e events.Event) error {
	s := e.Session
	if s.NotionPageID == "" {
		return nil
	}
	props := notionapi.Properties{
		"Phase": notionapi.SelectProperty{Select: notionapi.Option{Name: string(s.Phase)}},
	}
	if s.SlackChannelName != "" {
		props["Slack Channel"] = notionapi.RichTextProperty{RichText: richText(s.SlackChannelName)}
	}
	_, err := n.Pages.Update(ctx, notionapi.PageID(s.NotionPageID), &notionapi.PageUpdateRequest{Properties: props})
	if err != nil {
		return fmt.Errorf("update notion page: %w", err)
	}
	return nil
}

func pageProperties(s domain.Session) notionapi.Properties {
	short := s.ID
	if len(short) > 8 {
		short = short[:8]
	}
	recommended := "Pending"
	match := false
	if s.Analysis != nil {
		if lvl := s.Analysis.LevelAnalysis.RecommendedLevel; lvl > 0 {
			recommended = domain.FormatLevel(lvl)
		}
		match = s.Analysis.LevelAnalysis.LevelMatch
	}
	props := notionapi.Properties{
		"Name":                    notionapi.TitleProperty{Title: richText(s.JobFamily + " - " + short)},
		"Session ID":              notionapi.RichTextProperty{RichText: richText(s.ID)},
		"Job Family":              notionapi.SelectProperty{Select: notionapi.Option{Name: s.JobFamily}},
		"Track":                   notionapi.SelectProperty{Select: notionapi.Option{Name: string(s.Track)}},
		"Phase":                   notionapi.SelectProperty{Select: notionapi.Option{Name: string(s.Phase)}},
		"HM Level Request":        notionapi.RichTextProperty{RichText: richText(s.HMAnswers["hm_level_pick"])},
		"AI Level Recommendation": notionapi.RichTextProperty{RichText: richText(recommended)},
		"Level Match":             notionapi.CheckboxProperty{Checkbox: match},
	}
	if created, err := time.Parse(time.RFC3339, s.CreatedAt); err == nil {
		start := notionapi.Date(created)
		props["Created"] = notionapi.DateProperty{Date: &notionapi.DateObject{Start: &start}}
	}
	return props
}

func analysisSummary(s domain.Session) string {
	if s.Analysis != nil && s.Analysis.TAPBrief.Summary != "" {
		return s.Analysis.TAPBrief.Summary
	}
	return "Analysis pending..."
}

func richText(content string) []notionapi.RichText {
	return []notionapi.RichText{{Text: &notionapi.Text{Content: content}}}
}
