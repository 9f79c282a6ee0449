package signal

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	jsoniter "github.com/json-iterator/go"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/grayson1999/Bitcoin-Auto-Trading-sub001/internal/models"
	"github.com/grayson1999/Bitcoin-Auto-Trading-sub001/pkg/retry"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// systemPrompt задаёт модели роль и жёсткий формат ответа.
// Ответ обязан быть чистым JSON-объектом без пояснений вокруг.
const systemPrompt = `You are a cryptocurrency trading advisor for the Upbit KRW market.
Analyze the market snapshot and respond with a single JSON object, nothing else:
{"signal": "BUY" | "HOLD" | "SELL", "confidence": <number 0..1>, "reasoning": "<one short sentence>"}
Recommend BUY only on strong upside evidence, SELL to exit a losing or overextended position, otherwise HOLD.`

// Client - клиент OpenAI-совместимого chat-completions API.
// Реализует Source; при 429/5xx повторяет запрос с backoff.
type Client struct {
	baseURL string
	apiKey  string
	model   string

	httpClient *http.Client
	retryCfg   retry.Config
	logger     *zap.Logger
}

// NewClient создаёт клиента источника сигналов.
// baseURL указывает на корень API (например https://api.openai.com/v1).
func NewClient(baseURL, apiKey, model string, timeout time.Duration, logger *zap.Logger) *Client {
	cfg := retry.ConservativeConfig()
	cfg.RetryIf = retry.IsRetryable

	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		apiKey:     apiKey,
		model:      model,
		httpClient: &http.Client{Timeout: timeout},
		retryCfg:   cfg,
		logger:     logger.Named("signal"),
	}
}

// chatRequest - тело запроса chat-completions
type chatRequest struct {
	Model          string        `json:"model"`
	Messages       []chatMessage `json:"messages"`
	Temperature    float64       `json:"temperature"`
	ResponseFormat *respFormat   `json:"response_format,omitempty"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type respFormat struct {
	Type string `json:"type"`
}

// chatResponse - тело ответа chat-completions
type chatResponse struct {
	Model   string `json:"model"`
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
	Usage struct {
		TotalTokens int `json:"total_tokens"`
	} `json:"usage"`
}

// verdict - обязательный формат содержимого ответа модели
type verdict struct {
	Signal     string          `json:"signal"`
	Confidence decimal.Decimal `json:"confidence"`
	Reasoning  string          `json:"reasoning"`
}

func (c *Client) Generate(ctx context.Context, snap MarketSnapshot) (*models.Signal, error) {
	started := time.Now()

	sig, err := retry.DoWithResult(ctx, func() (*models.Signal, error) {
		return c.request(ctx, snap)
	}, c.retryCfg)
	if err != nil {
		return nil, fmt.Errorf("generate signal for %s: %w", snap.Market, err)
	}

	c.logger.Info("signal generated",
		zap.String("market", sig.Market),
		zap.String("signal", sig.SignalType),
		zap.String("confidence", sig.Confidence.String()),
		zap.Int("tokens", sig.Tokens),
		zap.Duration("elapsed", time.Since(started)))

	return sig, nil
}

// request выполняет один запрос к модели и разбирает ответ
func (c *Client) request(ctx context.Context, snap MarketSnapshot) (*models.Signal, error) {
	snapJSON, err := json.Marshal(snap)
	if err != nil {
		return nil, retry.Permanent(fmt.Errorf("marshal snapshot: %w", err))
	}

	reqBody, err := json.Marshal(chatRequest{
		Model: c.model,
		Messages: []chatMessage{
			{Role: "system", Content: systemPrompt},
			{Role: "user", Content: string(snapJSON)},
		},
		Temperature:    0.2,
		ResponseFormat: &respFormat{Type: "json_object"},
	})
	if err != nil {
		return nil, retry.Permanent(fmt.Errorf("marshal request: %w", err))
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		c.baseURL+"/chat/completions", strings.NewReader(string(reqBody)))
	if err != nil {
		return nil, retry.Permanent(err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("signal api request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read signal api response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		apiErr := fmt.Errorf("signal api status %d: %s", resp.StatusCode, truncate(body, 200))
		if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500 {
			return nil, retry.Temporary(apiErr)
		}
		return nil, retry.Permanent(apiErr)
	}

	var chat chatResponse
	if err := json.Unmarshal(body, &chat); err != nil {
		return nil, retry.Permanent(fmt.Errorf("decode signal api response: %w", err))
	}
	if len(chat.Choices) == 0 {
		return nil, retry.Permanent(fmt.Errorf("signal api returned no choices"))
	}

	return c.parseVerdict(snap.Market, chat)
}

// parseVerdict валидирует содержимое ответа модели.
// Нарушение формата - невосстановимая ошибка: повтор того же промпта
// с тем же срезом рынка даст тот же мусор.
func (c *Client) parseVerdict(market string, chat chatResponse) (*models.Signal, error) {
	content := strings.TrimSpace(chat.Choices[0].Message.Content)

	var v verdict
	if err := json.Unmarshal([]byte(content), &v); err != nil {
		return nil, retry.Permanent(fmt.Errorf("malformed model verdict %q: %w", truncate([]byte(content), 120), err))
	}

	signalType := strings.ToUpper(strings.TrimSpace(v.Signal))
	switch signalType {
	case models.SignalBuy, models.SignalHold, models.SignalSell:
	default:
		return nil, retry.Permanent(fmt.Errorf("unknown signal type %q", v.Signal))
	}

	if v.Confidence.IsNegative() || v.Confidence.GreaterThan(decimal.NewFromInt(1)) {
		return nil, retry.Permanent(fmt.Errorf("confidence %s out of [0,1]", v.Confidence))
	}

	return &models.Signal{
		Market:     market,
		SignalType: signalType,
		Confidence: v.Confidence,
		Reasoning:  v.Reasoning,
		ModelName:  chat.Model,
		Tokens:     chat.Usage.TotalTokens,
	}, nil
}

func truncate(b []byte, n int) string {
	if len(b) <= n {
		return string(b)
	}
	return string(b[:n]) + "..."
}
