package notify

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"sort"
	"time"

	"github.com/grayson1999/Bitcoin-Auto-Trading-sub001/internal/models"
)

// Цвета embed по важности (палитра Discord)
const (
	colorInfo     = 0x2ECC71 // зеленый
	colorWarning  = 0xF1C40F // желтый
	colorCritical = 0xE74C3C // красный
)

// DiscordClient отправляет уведомления в Discord webhook.
// Пустой URL выключает отправку: Send становится no-op.
type DiscordClient struct {
	webhookURL string
	httpClient *http.Client
	enabled    bool
}

// NewDiscordClient создает клиент webhook
func NewDiscordClient(webhookURL string) *DiscordClient {
	return &DiscordClient{
		webhookURL: webhookURL,
		httpClient: &http.Client{Timeout: 10 * time.Second},
		enabled:    webhookURL != "",
	}
}

// Enabled сообщает, настроен ли webhook
func (d *DiscordClient) Enabled() bool {
	return d.enabled
}

// Send отправляет уведомление как embed: заголовок, текст, цвет по
// важности, поля из metadata
func (d *DiscordClient) Send(n *models.Notification) error {
	if !d.enabled {
		return nil
	}

	timestamp := n.CreatedAt
	if timestamp.IsZero() {
		timestamp = time.Now()
	}

	embed := map[string]interface{}{
		"title":       n.Title,
		"description": n.Message,
		"color":       severityColor(n.Severity),
		"footer": map[string]string{
			"text": "Bitcoin Auto Trading",
		},
		"timestamp": timestamp.UTC().Format(time.RFC3339),
	}

	if len(n.Metadata) > 0 {
		keys := make([]string, 0, len(n.Metadata))
		for k := range n.Metadata {
			keys = append(keys, k)
		}
		sort.Strings(keys)

		fields := make([]map[string]interface{}, 0, len(keys))
		for _, k := range keys {
			fields = append(fields, map[string]interface{}{
				"name":   k,
				"value":  n.Metadata[k],
				"inline": true,
			})
		}
		embed["fields"] = fields
	}

	payload := map[string]interface{}{
		"embeds": []map[string]interface{}{embed},
	}

	data, err := json.Marshal(payload)
	if err != nil {
		return err
	}

	resp, err := d.httpClient.Post(d.webhookURL, "application/json", bytes.NewBuffer(data))
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return fmt.Errorf("discord returned status: %d", resp.StatusCode)
	}

	return nil
}

func severityColor(severity string) int {
	switch severity {
	case models.SeverityCritical:
		return colorCritical
	case models.SeverityWarning:
		return colorWarning
	default:
		return colorInfo
	}
}
