package alerts

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"carry-backtest/internal/config"
	"carry-backtest/internal/report"

	"go.uber.org/zap"
)

const telegramBaseURL = "https://api.telegram.org"

type Telegram struct {
	enabled bool
	token   string
	chatID  string
	baseURL string
	client  *http.Client
	log     *zap.Logger
}

func NewTelegram(cfg config.TelegramConfig, log *zap.Logger) *Telegram {
	return newTelegram(cfg, log, telegramBaseURL, &http.Client{Timeout: 10 * time.Second})
}

func newTelegram(cfg config.TelegramConfig, log *zap.Logger, baseURL string, client *http.Client) *Telegram {
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}
	return &Telegram{
		enabled: cfg.Enabled,
		token:   strings.TrimSpace(cfg.Token),
		chatID:  strings.TrimSpace(cfg.ChatID),
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  client,
		log:     log,
	}
}

func (t *Telegram) Send(ctx context.Context, message string) error {
	if !t.enabled {
		return nil
	}
	if t.token == "" || t.chatID == "" {
		return errors.New("telegram token and chat_id are required")
	}
	if strings.TrimSpace(message) == "" {
		return errors.New("telegram message is empty")
	}
	payload := map[string]string{
		"chat_id": t.chatID,
		"text":    message,
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	url := fmt.Sprintf("%s/bot%s/sendMessage", t.baseURL, t.token)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := t.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return fmt.Errorf("telegram send failed: http %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}
	var result struct {
		OK          bool   `json:"ok"`
		Description string `json:"description"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err == nil {
		if !result.OK {
			desc := strings.TrimSpace(result.Description)
			if desc == "" {
				desc = "unknown telegram error"
			}
			return fmt.Errorf("telegram send failed: %s", desc)
		}
	}
	return nil
}

// NotifyRun sends a run's headline figures.
func (t *Telegram) NotifyRun(ctx context.Context, label string, s report.Summary) error {
	if t == nil || !t.enabled {
		return nil
	}
	err := t.Send(ctx, RunMessage(label, s))
	if err != nil && t.log != nil {
		t.log.Warn("telegram run notification failed", zap.String("label", label), zap.Error(err))
	}
	return err
}

func RunMessage(label string, s report.Summary) string {
	var b strings.Builder
	if label != "" {
		fmt.Fprintf(&b, "%s\n", label)
	}
	fmt.Fprintf(&b, "final %s (%s)\n", report.USD(s.FinalCapital), report.Pct(s.ReturnPct))
	fmt.Fprintf(&b, "annualized %s, max drawdown %s\n", report.Pct(s.AnnualizedReturnPct), report.Pct(s.MaxDrawdownPct))
	fmt.Fprintf(&b, "fees %s, penalties %s\n", report.USD(s.Fees), report.USD(s.Penalties))
	fmt.Fprintf(&b, "liquidations %d, rebalances %d, deployed %s", s.Liquidations, s.Rebalances, report.Pct(s.DeployedPct))
	return b.String()
}
