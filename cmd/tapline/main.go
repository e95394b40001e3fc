package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"tapline/internal/app"
)

var rootCmd = &cobra.Command{
	Use:   "tapline",
	Short: "Tapline hiring intake",
	Long: `Tapline collects a hiring manager intake, invites stakeholders through signed links,
and reconciles their answers into a synthesis for the talent partner.
- Session: one hiring search, moving intake_complete -> stakeholders_invited -> synthesis_complete (closed is an exit).
- Invite: a signed link for one stakeholder; it can be submitted once and expires after tokens.ttl_days.
- Analysis: the first model pass over the intake; synthesis runs once responses are in.
- Workspace: the .tapline directory holding the sqlite database, next to an optional tapline.yml.`,
	SilenceUsage: true,
}

func main() {
	cobra.OnInitialize(initConfig)
	addPersistentFlags()
	registerCommands()
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func initConfig() {
	viper.SetEnvPrefix("TAPLINE")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()
}

func addPersistentFlags() {
	flags := rootCmd.PersistentFlags()
	flags.StringP("workspace", "w", ".", "workspace directory")
	flags.String("config", "", "config file (default <workspace>/tapline.yml)")
	flags.Bool("json", false, "output JSON")
	flags.String("log-level", "warn", "log level: debug, info, warn, error")
	flags.String("server", "http://127.0.0.1:8080", "API base URL for intake and respond")
	flags.String("api-key", "", "admin key sent to the API")
	for _, name := range []string{"workspace", "config", "json", "log-level", "server", "api-key"} {
		_ = viper.BindPFlag(name, flags.Lookup(name))
	}
}

func registerCommands() {
	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(sessionCmd())
	rootCmd.AddCommand(inviteCmd())
	rootCmd.AddCommand(synthesizeCmd())
	rootCmd.AddCommand(tokenCmd())
	rootCmd.AddCommand(questionsCmd())
	rootCmd.AddCommand(intakeCmd())
	rootCmd.AddCommand(respondCmd())
	rootCmd.AddCommand(configCmd())
}

func serveCmd() *cobra.Command {
	var addr string
	var sweep time.Duration
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start HTTP API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			a, err := openApp(ctx)
			if err != nil {
				return err
			}
			defer a.Close()
			handler, err := a.Handler()
			if err != nil {
				return err
			}
			if addr == "" {
				addr = a.Config.Server.Addr
			}
			srv := &http.Server{Addr: addr, Handler: handler, ReadHeaderTimeout: 10 * time.Second}
			go a.Sweep(ctx, sweep)
			go func() {
				<-ctx.Done()
				shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				srv.Shutdown(shutdownCtx)
			}()
			basePath := a.Config.Server.BasePath
			a.Logger.Info("serving", "addr", addr, "base_path", basePath, "store", a.Config.Store.Driver)
			fmt.Printf("Serving Tapline API on http://%s%s (OpenAPI at %s/openapi.json, Swagger UI at /docs, metrics at /metrics)\n", addr, basePath, basePath)
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "listen address (default server.addr)")
	cmd.Flags().DurationVar(&sweep, "sweep-interval", time.Hour, "how often expired records are purged (0 disables)")
	return cmd
}

func openApp(ctx context.Context) (*app.App, error) {
	return app.New(ctx, app.Options{
		Workspace:  viper.GetString("workspace"),
		ConfigPath: viper.GetString("config"),
		Logger:     app.NewLogger(os.Stderr, viper.GetString("log-level")),
	})
}

// withApp runs fn against a locally assembled app and waits for subscribers
// (Slack, Notion, webhooks) before returning.
func withApp(ctx context.Context, fn func(context.Context, *app.App) error) error {
	a, err := openApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()
	return fn(ctx, a)
}

func printJSONOrText(v any, text func()) error {
	if viper.GetBool("json") {
		return printJSON(v)
	}
	text()
	return nil
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
