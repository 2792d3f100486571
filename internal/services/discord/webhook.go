package discord

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/jwebster45206/villager-trader/internal/services/events"
	"github.com/jwebster45206/villager-trader/pkg/geom"
)

const (
	DefaultFooter = "Minecraft Trading Bot"

	colorGreen  = 0x00ff00
	colorRed    = 0xff0000
	colorOrange = 0xff6600
	colorBlue   = 0x0099ff
	colorPurple = 0x9966ff
	colorTeal   = 0x00ff99
)

// Embed is a Discord message embed.
type Embed struct {
	Title     string       `json:"title"`
	Color     int          `json:"color"`
	Fields    []EmbedField `json:"fields"`
	Timestamp string       `json:"timestamp"`
	Footer    EmbedFooter  `json:"footer"`
}

type EmbedField struct {
	Name   string `json:"name"`
	Value  string `json:"value"`
	Inline bool   `json:"inline"`
}

type EmbedFooter struct {
	Text string `json:"text"`
}

type webhookPayload struct {
	Embeds []Embed `json:"embeds"`
}

// Webhook posts events to a Discord webhook as embeds.
type Webhook struct {
	url    string
	footer string
	client *http.Client
	logger *slog.Logger
}

var _ events.Sink = (*Webhook)(nil)

// NewWebhook creates a webhook sink. A nil client gets a 10 second timeout.
func NewWebhook(url, footer string, client *http.Client, logger *slog.Logger) *Webhook {
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}
	if footer == "" {
		footer = DefaultFooter
	}
	return &Webhook{
		url:    url,
		footer: footer,
		client: client,
		logger: logger,
	}
}

func (w *Webhook) Name() string {
	return "discord"
}

func (w *Webhook) Send(ctx context.Context, ev events.Event) error {
	embed, ok := w.Format(ev)
	if !ok {
		return nil
	}

	body, err := json.Marshal(webhookPayload{Embeds: []Embed{embed}})
	if err != nil {
		return fmt.Errorf("failed to marshal webhook payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to create webhook request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := w.client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to send webhook: %w", err)
	}
	defer func() {
		_ = resp.Body.Close() // Ignore error in defer
	}()

	if resp.StatusCode >= 300 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("webhook returned status %d: %s", resp.StatusCode, string(msg))
	}

	w.logger.Debug("Webhook delivered", "event_type", ev.Type)
	return nil
}

// Format converts an event into an embed. Unknown event types are skipped.
func (w *Webhook) Format(ev events.Event) (Embed, bool) {
	embed := Embed{
		Timestamp: ev.Time.UTC().Format(time.RFC3339),
		Footer:    EmbedFooter{Text: w.footer},
	}

	switch ev.Type {
	case events.EventTypeTradeCompleted:
		embed.Title = "🔄 Trade Completed"
		embed.Color = colorGreen
		embed.Fields = []EmbedField{
			{Name: "Item", Value: ev.Field("item"), Inline: true},
			{Name: "Quantity", Value: ev.Field("quantity"), Inline: true},
			{Name: "Villager Location", Value: formatLocation(ev.Data["location"]), Inline: false},
		}

	case events.EventTypeStatusChanged:
		status := ev.Field("state")
		if status == "started" {
			embed.Title = "🟢 Bot Started"
			embed.Color = colorGreen
		} else {
			embed.Title = "🔴 Bot Stopped"
			embed.Color = colorRed
		}
		embed.Fields = []EmbedField{{Name: "Status", Value: status, Inline: true}}
		if detail := ev.Field("detail"); detail != "" {
			embed.Fields = append(embed.Fields, EmbedField{Name: "Details", Value: detail})
		}

	case events.EventTypeError:
		embed.Title = "⚠️ Bot Error"
		embed.Color = colorOrange
		embed.Fields = []EmbedField{{Name: "Error", Value: ev.Field("message")}}
		if c := ev.Field("context"); c != "" {
			embed.Fields = append(embed.Fields, EmbedField{Name: "Context", Value: c})
		}

	case events.EventTypeVillagersFound:
		bounds := "None"
		if active, _ := ev.Data["bounds_active"].(bool); active {
			bounds = "Active"
		}
		embed.Title = "👥 Villagers Found"
		embed.Color = colorBlue
		embed.Fields = []EmbedField{
			{Name: "Count", Value: ev.Field("count"), Inline: true},
			{Name: "Bounds", Value: bounds, Inline: true},
		}

	case events.EventTypeInventoryChanged:
		action := ev.Field("action")
		if action == events.ActionDeposit {
			embed.Title = "📦 Items Deposited"
			embed.Color = colorPurple
		} else {
			embed.Title = "💎 Currency Refilled"
			embed.Color = colorTeal
		}
		embed.Fields = []EmbedField{
			{Name: "Action", Value: action, Inline: true},
			{Name: "Item", Value: ev.Field("item"), Inline: true},
			{Name: "Quantity", Value: ev.Field("quantity"), Inline: true},
		}

	default:
		return Embed{}, false
	}

	return embed, true
}

func formatLocation(v any) string {
	if p, ok := v.(geom.Position); ok {
		return fmt.Sprintf("X: %d, Y: %d, Z: %d", p.X, p.Y, p.Z)
	}
	return "unknown"
}
