package main

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/atotto/clipboard"
	"github.com/dustin/go-humanize"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/olebedev/when"
	"github.com/olebedev/when/rules/common"
	"github.com/olebedev/when/rules/en"
	"github.com/spf13/cobra"

	"tapline/internal/app"
	"tapline/internal/domain"
	"tapline/internal/engine"
)

func sessionCmd() *cobra.Command {
	cmd := &cobra.Command{Use: "session", Short: "Inspect and manage sessions"}
	cmd.AddCommand(sessionListCmd())
	cmd.AddCommand(sessionShowCmd())
	cmd.AddCommand(sessionCloseCmd())
	cmd.AddCommand(sessionDeleteCmd())
	cmd.AddCommand(sessionLogCmd())
	return cmd
}

func sessionListCmd() *cobra.Command {
	var since, phase string
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List sessions, newest first",
		RunE: func(cmd *cobra.Command, args []string) error {
			var cutoff time.Time
			if since != "" {
				t, err := parseSince(since, time.Now())
				if err != nil {
					return err
				}
				cutoff = t
			}
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				items, err := a.Engine.ListSessions(ctx)
				if err != nil {
					return err
				}
				items = filterSessions(items, cutoff, domain.Phase(phase))
				return printJSONOrText(items, func() {
					renderSessions(items, time.Now())
				})
			})
		},
	}
	cmd.Flags().StringVar(&since, "since", "", `only sessions created after this time ("yesterday", "last week", "2026-01-02")`)
	cmd.Flags().StringVar(&phase, "phase", "", "filter by phase")
	return cmd
}

var dateParser = func() *when.Parser {
	w := when.New(nil)
	w.Add(en.All...)
	w.Add(common.All...)
	return w
}()

// parseSince accepts RFC 3339, a plain date or a natural-language phrase.
func parseSince(s string, now time.Time) (time.Time, error) {
	s = strings.TrimSpace(s)
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t, nil
	}
	if t, err := time.ParseInLocation("2006-01-02", s, now.Location()); err == nil {
		return t, nil
	}
	r, err := dateParser.Parse(s, now)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse --since %q: %w", s, err)
	}
	if r == nil {
		return time.Time{}, fmt.Errorf("parse --since %q: no date found", s)
	}
	return r.Time, nil
}

func filterSessions(items []domain.Session, cutoff time.Time, phase domain.Phase) []domain.Session {
	out := make([]domain.Session, 0, len(items))
	for _, s := range items {
		if phase != "" && s.Phase != phase {
			continue
		}
		if !cutoff.IsZero() {
			created, err := time.Parse(time.RFC3339Nano, s.CreatedAt)
			if err != nil || created.Before(cutoff) {
				continue
			}
		}
		out = append(out, s)
	}
	return out
}

func renderSessions(items []domain.Session, now time.Time) {
	tw := table.NewWriter()
	tw.SetOutputMirror(os.Stdout)
	tw.AppendHeader(table.Row{"ID", "Role", "Job family", "Track", "Phase", "Responses", "Updated"})
	for _, s := range items {
		tw.AppendRow(table.Row{s.ID, s.RoleTitle(), s.JobFamily, s.Track, s.Phase,
			fmt.Sprintf("%d/%d", s.SubmittedCount(), len(s.Invites)), relTime(s.UpdatedAt, now)})
	}
	tw.Render()
}

func relTime(stamp string, now time.Time) string {
	t, err := time.Parse(time.RFC3339Nano, stamp)
	if err != nil {
		return stamp
	}
	return humanize.RelTime(t, now, "ago", "from now")
}

func sessionShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show <session-id>",
		Short: "Show a session",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				s, err := a.Engine.GetSession(ctx, args[0])
				if err != nil {
					return err
				}
				return printJSONOrText(s, func() { renderSession(s, time.Now()) })
			})
		},
	}
}

func renderSession(s domain.Session, now time.Time) {
	fmt.Printf("%s · %s (%s)\n", s.RoleTitle(), s.JobFamily, s.Track)
	fmt.Printf("Phase: %s   Created: %s\n", s.Phase, relTime(s.CreatedAt, now))
	if a := s.Analysis; a != nil {
		fmt.Printf("Level: HM %s, recommended %s (match: %t)\n",
			domain.FormatLevel(a.LevelAnalysis.HMRequestedLevel), domain.FormatLevel(a.LevelAnalysis.RecommendedLevel), a.LevelAnalysis.LevelMatch)
		if a.TAPBrief.Summary != "" {
			fmt.Printf("Brief: %s\n", a.TAPBrief.Summary)
		}
		for _, t := range a.Tensions {
			fmt.Printf("  [%s] %s\n", strings.ToUpper(string(t.Severity)), t.Title)
		}
	} else {
		fmt.Println("Analysis: not available")
	}
	if s.SlackChannelName != "" {
		fmt.Printf("Slack: #%s\n", s.SlackChannelName)
	}
	if len(s.Invites) > 0 {
		tw := table.NewWriter()
		tw.SetOutputMirror(os.Stdout)
		tw.AppendHeader(table.Row{"Invite", "Name", "Role", "Status", "Expires"})
		for _, inv := range s.Invites {
			tw.AppendRow(table.Row{inv.ID, inv.Name, inv.RoleType, inv.Status, relTime(inv.ExpiresAt, now)})
		}
		tw.Render()
	}
	if s.Synthesis != nil {
		fmt.Printf("\nSynthesis:\n%s\n", s.Synthesis.SlackSummary)
	}
}

func sessionCloseCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "close <session-id>",
		Short: "Close a session",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				s, err := a.Engine.CloseSession(ctx, args[0])
				if err != nil {
					return err
				}
				return printJSONOrText(s, func() { fmt.Printf("Session %s closed\n", s.ID) })
			})
		},
	}
}

func sessionDeleteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "delete <session-id>",
		Short: "Delete a session and its audit log",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				if err := a.Engine.DeleteSession(ctx, args[0]); err != nil {
					return err
				}
				fmt.Printf("Session %s deleted\n", args[0])
				return nil
			})
		},
	}
}

func sessionLogCmd() *cobra.Command {
	var n int
	var evtType string
	cmd := &cobra.Command{
		Use:   "log <session-id>",
		Short: "Show a session's audit log",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				items, err := a.Engine.SessionEvents(ctx, args[0], evtType, n)
				if err != nil {
					return err
				}
				return printJSONOrText(items, func() {
					tw := table.NewWriter()
					tw.SetOutputMirror(os.Stdout)
					tw.AppendHeader(table.Row{"When", "Type", "Invite", "Payload"})
					for _, e := range items {
						tw.AppendRow(table.Row{relTime(e.TS, time.Now()), e.Type, e.InviteID, e.Payload})
					}
					tw.Render()
				})
			})
		},
	}
	cmd.Flags().IntVarP(&n, "n", "n", 50, "number of events")
	cmd.Flags().StringVar(&evtType, "type", "", "event type filter")
	return cmd
}

func inviteCmd() *cobra.Command {
	cmd := &cobra.Command{Use: "invite", Short: "Invite stakeholders"}
	cmd.AddCommand(inviteCreateCmd())
	return cmd
}

func inviteCreateCmd() *cobra.Command {
	var name, role, slackUser string
	var copyLink bool
	cmd := &cobra.Command{
		Use:   "create <session-id>",
		Short: "Create a stakeholder invite and print its link",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if strings.TrimSpace(name) == "" || strings.TrimSpace(role) == "" {
				return fmt.Errorf("--name and --role required")
			}
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				inv, link, err := a.Engine.CreateInvite(ctx, engine.InviteCreateOptions{
					SessionID:   args[0],
					Name:        name,
					RoleType:    domain.RoleType(role),
					SlackUserID: slackUser,
				})
				if err != nil {
					return err
				}
				if copyLink {
					if err := clipboard.WriteAll(link); err != nil {
						a.Logger.Warn("copy to clipboard failed", "err", err)
					}
				}
				out := map[string]any{"invite_id": inv.ID, "form_link": link, "expires_at": inv.ExpiresAt}
				return printJSONOrText(out, func() {
					fmt.Printf("Invite %s for %s (%s), expires %s\n%s\n", inv.ID, inv.Name, inv.RoleType, relTime(inv.ExpiresAt, time.Now()), link)
				})
			})
		},
	}
	cmd.Flags().StringVar(&name, "name", "", "stakeholder name")
	cmd.Flags().StringVar(&role, "role", "", "stakeholder role type")
	cmd.Flags().StringVar(&slackUser, "slack-user", "", "Slack user id to DM the link to")
	cmd.Flags().BoolVar(&copyLink, "copy", false, "copy the form link to the clipboard")
	return cmd
}

func synthesizeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "synthesize <session-id>",
		Short: "Run cross-stakeholder synthesis",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				s, err := a.Engine.Synthesize(ctx, args[0])
				if err != nil {
					return err
				}
				return printJSONOrText(s.Synthesis, func() {
					fmt.Printf("Phase: %s\n\n%s\n", s.Phase, s.Synthesis.SlackSummary)
					if s.Synthesis.LevelDivergenceFlag {
						fmt.Println("\nLevels diverge across stakeholders.")
					}
					if s.Synthesis.TapPrivateBrief != "" {
						fmt.Printf("\nPrivate brief:\n%s\n", s.Synthesis.TapPrivateBrief)
					}
				})
			})
		},
	}
}
