package config

import (
	"fmt"
	"strings"

	"github.com/caarlos0/env/v11"
)

// Skip disables the collaborator a credential belongs to.
const Skip = "skip"

// DevJWTSecret signs invite tokens when TAPLINE_JWT_SECRET is unset.
const DevJWTSecret = "tapline-dev-secret-change-me"

// Secrets holds credentials and deployment settings read from the environment.
type Secrets struct {
	JWTSecret        string `env:"TAPLINE_JWT_SECRET"`
	AnthropicAPIKey  string `env:"ANTHROPIC_API_KEY"`
	SlackBotToken    string `env:"SLACK_BOT_TOKEN"`
	SlackAPIURL      string `env:"SLACK_API_URL"`
	NotionAPIKey     string `env:"NOTION_API_KEY"`
	NotionDatabaseID string `env:"NOTION_DATABASE_ID"`
	AppURL           string `env:"TAPLINE_APP_URL" envDefault:"http://localhost:3000"`
	DatabaseURL      string `env:"DATABASE_URL"`
	AdminKey         string `env:"TAPLINE_ADMIN_KEY"`
	AWSRegion        string `env:"AWS_REGION"`

	BedrockAccessKeyID     string `env:"TAPLINE_BEDROCK_ACCESS_KEY_ID"`
	BedrockSecretAccessKey string `env:"TAPLINE_BEDROCK_SECRET_ACCESS_KEY"`
}

// LoadSecrets parses Secrets from the process environment.
func LoadSecrets() (Secrets, error) {
	var s Secrets
	if err := env.Parse(&s); err != nil {
		return Secrets{}, fmt.Errorf("parse env: %w", err)
	}
	s.AppURL = strings.TrimRight(s.AppURL, "/")
	return s, nil
}

// UsingDevSecret reports whether tokens fall back to the built-in secret.
func (s Secrets) UsingDevSecret() bool {
	return strings.TrimSpace(s.JWTSecret) == ""
}

// SigningSecret returns the token secret, falling back to DevJWTSecret.
func (s Secrets) SigningSecret() string {
	if s.UsingDevSecret() {
		return DevJWTSecret
	}
	return s.JWTSecret
}

// Skipped reports whether a credential is absent or set to the skip sentinel.
func Skipped(v string) bool {
	v = strings.TrimSpace(v)
	return v == "" || strings.EqualFold(v, Skip)
}

// SlackEnabled reports whether Slack calls should be made.
func (s Secrets) SlackEnabled() bool { return !Skipped(s.SlackBotToken) }

// NotionEnabled reports whether Notion calls should be made.
func (s Secrets) NotionEnabled() bool {
	return !Skipped(s.NotionAPIKey) && strings.TrimSpace(s.NotionDatabaseID) != ""
}

// FormLink builds the respondent URL for an invite token.
func (s Secrets) FormLink(token string) string {
	base := s.AppURL
	if base == "" {
		base = "http://localhost:3000"
	}
	return strings.TrimRight(base, "/") + "/respond/" + token
}
