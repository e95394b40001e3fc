package main

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"os"
	"strings"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"tapline/internal/app"
	"tapline/internal/config"
	"tapline/internal/domain"
	"tapline/internal/questions"
	"tapline/internal/repo"
	"tapline/internal/token"
	"tapline/internal/tui"
	taplinesdk "tapline/sdk/go"
)

func tokenCmd() *cobra.Command {
	cmd := &cobra.Command{Use: "token", Short: "Issue and inspect invite tokens"}
	cmd.AddCommand(tokenIssueCmd())
	cmd.AddCommand(tokenVerifyCmd())
	return cmd
}

func tokenIssueCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "issue <session-id> <invite-id>",
		Short: "Mint a fresh link for an existing invite",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				s, err := a.Engine.GetSession(ctx, args[0])
				if err != nil {
					return err
				}
				inv, ok := s.Invite(args[1])
				if !ok {
					return fmt.Errorf("invite %s: %w", args[1], repo.ErrNotFound)
				}
				raw, expires, err := a.Engine.Tokens.Issue(token.Claims{InviteID: inv.ID, SessionID: s.ID, RoleType: inv.RoleType})
				if err != nil {
					return err
				}
				link := a.Engine.FormLink(raw)
				return printJSONOrText(map[string]any{"token": raw, "form_link": link, "expires_at": expires}, func() {
					fmt.Println(link)
				})
			})
		},
	}
}

func tokenVerifyCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "verify <token-or-link>",
		Short: "Verify a token and show the invite it grants",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				claims, err := a.Engine.Tokens.Verify(extractToken(args[0]))
				if err != nil {
					return err
				}
				status := "unknown"
				if s, err := a.Engine.GetSession(ctx, claims.SessionID); err == nil {
					if inv, ok := s.Invite(claims.InviteID); ok {
						status = string(inv.Status)
					}
				} else if !errors.Is(err, repo.ErrNotFound) {
					return err
				}
				out := map[string]any{"session_id": claims.SessionID, "invite_id": claims.InviteID, "role_type": claims.RoleType, "status": status}
				return printJSONOrText(out, func() {
					fmt.Printf("valid: session %s, invite %s, role %s, status %s\n", claims.SessionID, claims.InviteID, claims.RoleType, status)
				})
			})
		},
	}
}

// extractToken accepts a bare token or a form link ending in /respond/<token>.
func extractToken(s string) string {
	s = strings.TrimSpace(s)
	if u, err := url.Parse(s); err == nil && u.Path != "" {
		if i := strings.LastIndex(u.Path, "/respond/"); i >= 0 {
			return strings.Trim(u.Path[i+len("/respond/"):], "/")
		}
	}
	return s
}

func questionsCmd() *cobra.Command {
	var jobFamily, role, relationship string
	cmd := &cobra.Command{
		Use:   "questions",
		Short: "Print the intake for a job family or the form for a role",
		RunE: func(cmd *cobra.Command, args []string) error {
			var qs []questions.Question
			header := ""
			switch {
			case role != "":
				qs = questions.ForRespondent(domain.RoleType(role), domain.Answers{questions.RelationshipID: relationship})
				header = "Respondent form for " + role
			case jobFamily != "":
				track, intake := questions.ForIntake(jobFamily)
				qs = intake
				header = fmt.Sprintf("Intake for %s (%s track)", jobFamily, questions.TrackLabel(track))
			default:
				return printJSONOrText(familyIndex(), renderFamilies)
			}
			return printJSONOrText(qs, func() {
				fmt.Println(header)
				renderQuestions(qs)
			})
		},
	}
	cmd.Flags().StringVar(&jobFamily, "job-family", "", "job family")
	cmd.Flags().StringVar(&role, "role", "", "respondent role type")
	cmd.Flags().StringVar(&relationship, "relationship", "", "relationship answer (option text or key)")
	return cmd
}

func familyIndex() map[domain.Track][]string {
	out := map[domain.Track][]string{}
	for _, t := range questions.TrackOrder {
		out[t] = questions.JobFamilies(t)
	}
	return out
}

func renderFamilies() {
	tw := table.NewWriter()
	tw.SetOutputMirror(os.Stdout)
	tw.AppendHeader(table.Row{"Track", "Job families"})
	for _, t := range questions.TrackOrder {
		tw.AppendRow(table.Row{questions.TrackLabel(t), strings.Join(questions.JobFamilies(t), ", ")})
	}
	tw.Render()
}

func renderQuestions(qs []questions.Question) {
	tw := table.NewWriter()
	tw.SetOutputMirror(os.Stdout)
	tw.AppendHeader(table.Row{"#", "ID", "Type", "Question", "Options"})
	for i, q := range qs {
		label := q.Label
		if q.Optional {
			label += " (optional)"
		}
		tw.AppendRow(table.Row{i + 1, q.ID, q.Kind, label, len(q.Options)})
	}
	tw.Render()
}

func apiClient() *taplinesdk.Client {
	c := taplinesdk.New(viper.GetString("server"))
	c.APIKey = viper.GetString("api-key")
	return c
}

func intakeCmd() *cobra.Command {
	var jobFamily, tapSlackID string
	cmd := &cobra.Command{
		Use:   "intake",
		Short: "Fill in a hiring manager intake in the terminal",
		RunE: func(cmd *cobra.Command, args []string) error {
			if strings.TrimSpace(jobFamily) == "" {
				return fmt.Errorf("--job-family required (see `tapline questions` for the list)")
			}
			final, err := tui.Run(tui.NewIntake(apiClient(), jobFamily, tapSlackID))
			if err != nil {
				return err
			}
			if final.Done() {
				fmt.Println(final.Result())
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&jobFamily, "job-family", "", "job family of the role")
	cmd.Flags().StringVar(&tapSlackID, "tap-slack-id", "", "Slack user id of the talent partner")
	return cmd
}

func respondCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "respond <token-or-link>",
		Short: "Answer a stakeholder invite in the terminal",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client := apiClient()
			raw := extractToken(args[0])
			form, err := client.OpenInvite(cmd.Context(), raw)
			switch {
			case taplinesdk.IsCode(err, "invalid_token"):
				return fmt.Errorf("this link is invalid or has expired")
			case taplinesdk.IsCode(err, "already_submitted"):
				return fmt.Errorf("a response was already submitted for this link")
			case err != nil:
				return err
			}
			final, err := tui.Run(tui.NewRespond(client, raw, form))
			if err != nil {
				return err
			}
			if final.Done() {
				fmt.Println(final.Result())
			}
			return nil
		},
	}
}

func configCmd() *cobra.Command {
	cmd := &cobra.Command{Use: "config", Short: "Inspect workspace configuration"}
	cmd.AddCommand(&cobra.Command{
		Use:   "show",
		Short: "Print the effective configuration",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := app.LoadConfig(viper.GetString("workspace"), viper.GetString("config"))
			if err != nil {
				return err
			}
			if viper.GetBool("json") {
				return printJSON(cfg)
			}
			out, err := yaml.Marshal(cfg)
			if err != nil {
				return err
			}
			fmt.Print(string(out))
			return nil
		},
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "validate",
		Short: "Validate the configuration and environment",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := app.LoadConfig(viper.GetString("workspace"), viper.GetString("config"))
			if err != nil {
				return err
			}
			secrets, err := config.LoadSecrets()
			if err != nil {
				return err
			}
			for _, line := range configReport(cfg, secrets) {
				fmt.Println(line)
			}
			return nil
		},
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "init",
		Short: "Write a default tapline.yml into the workspace",
		RunE: func(cmd *cobra.Command, args []string) error {
			path := config.Path(viper.GetString("workspace"))
			if _, err := os.Stat(path); err == nil {
				return fmt.Errorf("%s already exists", path)
			}
			if err := os.WriteFile(path, []byte(config.GenerateDefault()), 0o644); err != nil {
				return err
			}
			fmt.Println("wrote", path)
			return nil
		},
	})
	return cmd
}

func configReport(cfg *config.Config, s config.Secrets) []string {
	lines := []string{
		fmt.Sprintf("config ok: store=%s roles=%s (schema %d) model=%s", cfg.Store.Driver, cfg.Roles.Variant, cfg.Roles.SchemaVersion, cfg.Model.Provider),
	}
	if s.UsingDevSecret() {
		lines = append(lines, "warning: TAPLINE_JWT_SECRET not set, using the development secret")
	}
	if cfg.Model.Provider == "anthropic" && config.Skipped(s.AnthropicAPIKey) {
		lines = append(lines, "warning: ANTHROPIC_API_KEY not set, analysis runs offline")
	}
	lines = append(lines,
		fmt.Sprintf("slack: %s", enabled(s.SlackEnabled())),
		fmt.Sprintf("notion: %s", enabled(s.NotionEnabled())),
		fmt.Sprintf("webhooks: %d", len(cfg.Webhooks)),
		fmt.Sprintf("admin key: %s", enabled(s.AdminKey != "")),
	)
	return lines
}

func enabled(b bool) string {
	if b {
		return "enabled"
	}
	return "disabled"
}
