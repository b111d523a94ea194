package notifiers

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"time"

	"github.com/go-resty/resty/v2"

	"github.com/samvad-hq/newswatch/pkg/httpclient"
)

type telegramRequest struct {
	ChatID                string `json:"chat_id"`
	Text                  string `json:"text"`
	DisableWebPagePreview bool   `json:"disable_web_page_preview"`
}

type telegramResponse struct {
	OK          bool   `json:"ok"`
	Description string `json:"description"`
}

// telegramNotifier sends messages through the Bot API sendMessage method.
type telegramNotifier struct {
	id       string
	chatID   string
	endpoint string
	client   *resty.Client
	log      Logger
}

func newTelegramNotifier(_ context.Context, cfg NotifierConfig, log Logger) (Notifier, error) {
	if cfg.Telegram == nil {
		return nil, fmt.Errorf("notifier %q missing telegram configuration", cfg.ID)
	}
	return &telegramNotifier{
		id:       cfg.ID,
		chatID:   cfg.Telegram.ChatID,
		endpoint: fmt.Sprintf("%s/bot%s/sendMessage", cfg.Telegram.APIBase, cfg.Telegram.BotToken),
		client:   httpclient.NewRestyHTTPClient(time.Duration(cfg.TimeoutSeconds) * time.Second),
		log:      ensureLogger(log),
	}, nil
}

func (t *telegramNotifier) ID() string   { return t.id }
func (t *telegramNotifier) Type() string { return TypeTelegram }

func (t *telegramNotifier) Notify(ctx context.Context, msg Message) error {
	var out telegramResponse
	resp, err := t.client.R().
		SetContext(ctx).
		SetHeader("Content-Type", "application/json").
		SetBody(telegramRequest{ChatID: t.chatID, Text: msg.Text()}).
		SetResult(&out).
		SetError(&out).
		Post(t.endpoint)
	if err != nil {
		// The endpoint embeds the bot token; keep it out of the error.
		var urlErr *url.Error
		if errors.As(err, &urlErr) {
			err = urlErr.Err
		}
		return fmt.Errorf("telegram sendMessage: %w", err)
	}
	if resp.IsError() || !out.OK {
		t.log.WarnObj("telegram rejected message", "notifier_telegram", map[string]any{
			"notifier_id": t.id,
			"status":      resp.StatusCode(),
			"description": out.Description,
		})
		return fmt.Errorf("telegram sendMessage status %d: %s", resp.StatusCode(), out.Description)
	}
	return nil
}
