package notify

import (
	"context"
	"fmt"
	"log/slog"
	"regexp"
	"strings"

	"github.com/cbroglie/mustache"
	"github.com/slack-go/slack"

	"tapline/internal/domain"
	"tapline/internal/events"
)

var (
	inviteText = mustTemplate(`Hi {{{name}}}! *{{{requester}}}* from the Talent team has invited you to share your perspective on an open role.`)
	roleText   = mustTemplate(`*Role:* {{{role_title}}} ({{{job_family}}})

Your answers are independent and no other stakeholder sees them. This takes about 8 minutes.`)
	progressText = mustTemplate(`*{{{name}}}* ({{{role}}}) just submitted. {{submitted}}/{{total}} responses in.`)
	allDoneText  = mustTemplate(`*All {{total}} stakeholders have responded for {{{role_title}}}.* Synthesis is ready to run.`)
)

const nextStepText = "*Next step:* the TAP will schedule an alignment call to work through open questions before the search launches."

func mustTemplate(src string) *mustache.Template {
	tmpl, err := mustache.ParseString(src)
	if err != nil {
		panic(err)
	}
	return tmpl
}

// Slack sends invite DMs and progress pings and opens the search channel.
type Slack struct {
	Client   *slack.Client
	Recorder Recorder
	AppURL   string
	Logger   *slog.Logger
}

// NewSlack builds a bot client. apiURL overrides the Slack endpoint and may be empty.
func NewSlack(token, apiURL, appURL string, rec Recorder, logger *slog.Logger) *Slack {
	var opts []slack.Option
	if apiURL != "" {
		opts = append(opts, slack.OptionAPIURL(strings.TrimRight(apiURL, "/")+"/"))
	}
	return &Slack{
		Client:   slack.New(token, opts...),
		Recorder: rec,
		AppURL:   strings.TrimRight(appURL, "/"),
		Logger:   logger,
	}
}

func (s *Slack) Register(bus *events.Bus) {
	bus.Subscribe("slack.invite", s.InviteCreated, events.InviteCreated)
	bus.Subscribe("slack.progress", s.ResponseSubmitted, events.ResponseSubmitted)
	bus.Subscribe("slack.channel", s.SynthesisCompleted, events.SynthesisCompleted)
}

// InviteCreated DMs the stakeholder their form link and marks the invite sent.
func (s *Slack) InviteCreated(ctx context.Context, e events.Event) error {
	if e.Invite == nil || e.Invite.SlackUserID == "" || e.FormLink == "" {
		return nil
	}
	data := map[string]any{
		"name":       e.Invite.Name,
		"requester":  requesterName(e.Session),
		"role_title": e.Session.RoleTitle(),
		"job_family": e.Session.JobFamily,
	}
	intro, err := inviteText.Render(data)
	if err != nil {
		return err
	}
	role, err := roleText.Render(data)
	if err != nil {
		return err
	}
	_, _, err = s.Client.PostMessageContext(ctx, e.Invite.SlackUserID,
		slack.MsgOptionText(intro, false),
		slack.MsgOptionBlocks(
			markdownSection(intro),
			markdownSection(role),
			linkButton("Share my perspective", e.FormLink, slack.StylePrimary),
		),
	)
	if err != nil {
		return fmt.Errorf("slack dm: %w", err)
	}
	if _, err := s.Recorder.MarkInviteSent(ctx, e.SessionID, e.Invite.ID); err != nil {
		return fmt.Errorf("mark invite sent: %w", err)
	}
	loggerOr(s.Logger).Info("invite delivered", "session_id", e.SessionID, "invite_id", e.Invite.ID)
	return nil
}

// ResponseSubmitted pings the requester with submission progress.
func (s *Slack) ResponseSubmitted(ctx context.Context, e events.Event) error {
	if e.Session.TapSlackID == "" {
		return nil
	}
	submitted := e.Session.SubmittedCount()
	total := len(e.Session.Invites)
	data := map[string]any{
		"submitted":  submitted,
		"total":      total,
		"role_title": e.Session.RoleTitle(),
	}
	if e.Invite != nil {
		data["name"] = e.Invite.Name
		data["role"] = string(e.Invite.RoleType)
	}
	tmpl, label, style := progressText, "View dashboard", slack.StyleDefault
	if e.Session.AllSubmitted() {
		tmpl, label, style = allDoneText, "Run synthesis", slack.StylePrimary
	}
	text, err := tmpl.Render(data)
	if err != nil {
		return err
	}
	_, _, err = s.Client.PostMessageContext(ctx, e.Session.TapSlackID,
		slack.MsgOptionText(text, false),
		slack.MsgOptionBlocks(markdownSection(text), linkButton(label, s.dashboardURL(e.SessionID), style)),
	)
	if err != nil {
		return fmt.Errorf("slack progress ping: %w", err)
	}
	return nil
}

// SynthesisCompleted opens the search channel once per session and posts the
// Slack-safe summary into it.
func (s *Slack) SynthesisCompleted(ctx context.Context, e events.Event) error {
	sess := e.Session
	if sess.Synthesis == nil || sess.SlackChannelID != "" {
		return nil
	}
	name := ChannelName(sess.JobFamily, sess.ID)
	ch, err := s.Client.CreateConversationContext(ctx, slack.CreateConversationParams{ChannelName: name})
	if err != nil {
		return fmt.Errorf("create channel %s: %w", name, err)
	}
	if users := channelMembers(sess); len(users) > 0 {
		if _, err := s.Client.InviteUsersToConversationContext(ctx, ch.ID, users...); err != nil {
			loggerOr(s.Logger).Warn("slack channel invite failed", "channel", name, "err", err)
		}
	}
	header := sess.RoleTitle() + ": Search Alignment"
	_, _, err = s.Client.PostMessageContext(ctx, ch.ID,
		slack.MsgOptionText(header, false),
		slack.MsgOptionBlocks(
			slack.NewHeaderBlock(slack.NewTextBlockObject(slack.PlainTextType, header, false, false)),
			markdownSection(sess.Synthesis.SlackSummary),
			markdownSection(nextStepText),
		),
	)
	if err != nil {
		return fmt.Errorf("post summary: %w", err)
	}
	if _, err := s.Recorder.SetSlackChannel(ctx, sess.ID, ch.ID, name); err != nil {
		return fmt.Errorf("store channel: %w", err)
	}
	return nil
}

func (s *Slack) dashboardURL(sessionID string) string {
	return s.AppURL + "/dashboard/" + sessionID
}

var (
	slugSeparators = regexp.MustCompile(`[\s/]+`)
	slugInvalid    = regexp.MustCompile(`[^a-z0-9-]`)
)

// ChannelName returns search-<job family slug>-<first six id chars>.
func ChannelName(jobFamily, sessionID string) string {
	slug := slugSeparators.ReplaceAllString(strings.ToLower(jobFamily), "-")
	slug = slugInvalid.ReplaceAllString(slug, "")
	short := sessionID
	if len(short) > 6 {
		short = short[:6]
	}
	// Slack caps channel names at 80 characters.
	if limit := 80 - len("search--") - len(short); len(slug) > limit {
		slug = strings.TrimRight(slug[:limit], "-")
	}
	return "search-" + slug + "-" + short
}

func channelMembers(s domain.Session) []string {
	seen := map[string]bool{}
	var out []string
	add := func(id string) {
		if id == "" || seen[id] {
			return
		}
		seen[id] = true
		out = append(out, id)
	}
	add(s.TapSlackID)
	for _, inv := range s.Invites {
		add(inv.SlackUserID)
	}
	return out
}

func markdownSection(text string) *slack.SectionBlock {
	return slack.NewSectionBlock(slack.NewTextBlockObject(slack.MarkdownType, text, false, false), nil, nil)
}

func linkButton(label, url string, style slack.Style) *slack.ActionBlock {
	btn := slack.NewButtonBlockElement("", "", slack.NewTextBlockObject(slack.PlainTextType, label, false, false))
	btn.URL = url
	btn.Style = style
	return slack.NewActionBlock("", btn)
}
