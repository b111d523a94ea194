package notifiers

import (
	"context"
	"fmt"
	"time"

	"github.com/go-resty/resty/v2"

	"github.com/samvad-hq/newswatch/pkg/httpclient"
)

// discordContentLimit is the maximum message length accepted by webhooks.
const discordContentLimit = 2000

type discordPayload struct {
	Content  string `json:"content"`
	Username string `json:"username,omitempty"`
}

// discordNotifier posts the chat text to a Discord webhook.
type discordNotifier struct {
	id       string
	webhook  string
	username string
	client   *resty.Client
	log      Logger
}

func newDiscordNotifier(_ context.Context, cfg NotifierConfig, log Logger) (Notifier, error) {
	if cfg.Discord == nil {
		return nil, fmt.Errorf("notifier %q missing discord configuration", cfg.ID)
	}
	return &discordNotifier{
		id:       cfg.ID,
		webhook:  cfg.Discord.WebhookURL,
		username: cfg.Discord.Username,
		client:   httpclient.NewRestyHTTPClient(time.Duration(cfg.TimeoutSeconds) * time.Second),
		log:      ensureLogger(log),
	}, nil
}

func (d *discordNotifier) ID() string   { return d.id }
func (d *discordNotifier) Type() string { return TypeDiscord }

func (d *discordNotifier) Notify(ctx context.Context, msg Message) error {
	content := msg.Text()
	if r := []rune(content); len(r) > discordContentLimit {
		content = string(r[:discordContentLimit-3]) + "..."
	}

	resp, err := d.client.R().
		SetContext(ctx).
		SetHeader("Content-Type", "application/json").
		SetBody(discordPayload{Content: content, Username: d.username}).
		Post(d.webhook)
	if err != nil {
		return fmt.Errorf("discord webhook: %w", err)
	}
	if resp.IsError() {
		d.log.WarnObj("discord webhook rejected message", "notifier_discord", map[string]any{
			"notifier_id": d.id,
			"status":      resp.StatusCode(),
			"source_id":   msg.SourceID,
		})
		return fmt.Errorf("discord webhook status %d: %s", resp.StatusCode(), readBodySnippet(resp.Body()))
	}
	return nil
}
