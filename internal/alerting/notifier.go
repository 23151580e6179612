package alerting

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"trading-analyst/internal/analysis"
)

// Notification 封装一次分析结果的摘要。
type Notification struct {
	RunID       string
	Symbol      string
	Timeframe   string
	At          time.Time
	LatestPrice decimal.Decimal
	ChangePct   decimal.Decimal
	Divergence  bool
	Alignment   string
	QuantModel  string
	VisualModel string
	OutputFile  string
	Notes       string
}

// FromResult 将分析结果转换为通知。
func FromResult(res *analysis.Result) Notification {
	return Notification{
		RunID:       res.ID.String(),
		Symbol:      res.Metadata.Symbol,
		Timeframe:   res.Metadata.Timeframe,
		At:          res.Metadata.Timestamp,
		LatestPrice: res.Quantitative.LatestPrice,
		ChangePct:   res.DataSummary.ChangePct,
		Divergence:  res.Integration.DivergenceDetected,
		Alignment:   res.Integration.AlignmentStatus,
		QuantModel:  res.Quantitative.Model,
		VisualModel: res.Visual.Model,
		OutputFile:  res.OutputFile,
		Notes:       res.Integration.Notes,
	}
}

// Notifier 定义通知输送接口。
type Notifier interface {
	Notify(ctx context.Context, notification Notification) error
}

// TelegramNotifier 通过 Telegram Bot API 推送消息。
type TelegramNotifier struct {
	botToken string
	chatID   string
	baseURL  string
	client   *http.Client
	logger   zerolog.Logger
}

// NewTelegramNotifier 构造 Telegram 通知器。
func NewTelegramNotifier(botToken, chatID, baseURL string, timeout time.Duration, logger zerolog.Logger) *TelegramNotifier {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	if baseURL == "" {
		baseURL = "https://api.telegram.org"
	}

	return &TelegramNotifier{
		botToken: botToken,
		chatID:   chatID,
		baseURL:  strings.TrimRight(baseURL, "/"),
		client:   &http.Client{Timeout: timeout},
		logger:   logger.With().Str("component", "alert_telegram").Logger(),
	}
}

// NotifyAnalysis 推送分析摘要。
func (n *TelegramNotifier) NotifyAnalysis(ctx context.Context, res *analysis.Result) error {
	return n.Notify(ctx, FromResult(res))
}

// Notify 调用 sendMessage API 推送文本。
func (n *TelegramNotifier) Notify(ctx context.Context, note Notification) error {
	payload := map[string]string{
		"chat_id": n.chatID,
		"text":    renderMessage(note),
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal telegram payload: %w", err)
	}

	url := fmt.Sprintf("%s/bot%s/sendMessage", n.baseURL, n.botToken)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create telegram request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := n.client.Do(req)
	if err != nil {
		return fmt.Errorf("send telegram request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("telegram 响应码异常: %d", resp.StatusCode)
	}

	var result struct {
		OK bool `json:"ok"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err == nil {
		if !result.OK {
			return fmt.Errorf("telegram 返回 ok=false")
		}
	}

	n.logger.Info().Str("run_id", note.RunID).
		Str("symbol", note.Symbol).
		Str("alignment", note.Alignment).
		Msg("分析通知已发送 (Telegram)")
	return nil
}

func renderMessage(note Notification) string {
	builder := strings.Builder{}
	builder.WriteString(fmt.Sprintf("[Analysis] %s %s\n", note.Symbol, note.Timeframe))
	if !note.At.IsZero() {
		builder.WriteString(fmt.Sprintf("Time: %s UTC\n", note.At.UTC().Format(time.RFC3339)))
	}
	builder.WriteString(fmt.Sprintf("Price: %s (%s%%)\n", note.LatestPrice.String(), note.ChangePct.StringFixed(2)))
	builder.WriteString(fmt.Sprintf("Alignment: %s\n", strings.ToUpper(note.Alignment)))
	if note.Divergence {
		builder.WriteString("Divergence: YES\n")
	} else {
		builder.WriteString("Divergence: no\n")
	}
	builder.WriteString(fmt.Sprintf("Models: %s / %s\n", note.QuantModel, note.VisualModel))
	if note.OutputFile != "" {
		builder.WriteString(fmt.Sprintf("Saved: %s\n", note.OutputFile))
	}
	if note.RunID != "" {
		builder.WriteString(fmt.Sprintf("Run: %s\n", note.RunID))
	}
	if note.Notes != "" {
		builder.WriteString(note.Notes)
	}
	return builder.String()
}

var (
	_ Notifier          = (*TelegramNotifier)(nil)
	_ analysis.Notifier = (*TelegramNotifier)(nil)
)
