package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
)

// discordPayload carries a single embed per notification; the embed's colour
// strip conveys the event severity at a glance.
type discordPayload struct {
	Embeds []discordEmbed `json:"embeds"`
}

type discordEmbed struct {
	Title       string         `json:"title"`
	Description string         `json:"description"`
	Color       int            `json:"color"`
	Footer      *discordFooter `json:"footer,omitempty"`
}

type discordFooter struct {
	Text string `json:"text"`
}

// eventColor maps event types to the embed colour strip.
func eventColor(event string) int {
	switch event {
	case EventError, EventFollowupDegraded:
		return 0xe74c3c // red
	case EventProtocolDisconnected:
		return 0xe67e22 // orange
	case EventPositionClosed:
		return 0x2ecc71 // green
	default:
		return 0x3498db // blue
	}
}

// DiscordSender delivers notifications via a Discord webhook.
type DiscordSender struct {
	webhookURL string
	client     *http.Client
}

// NewDiscordSender creates a DiscordSender for the given webhook URL.
func NewDiscordSender(webhookURL string) *DiscordSender {
	return &DiscordSender{
		webhookURL: webhookURL,
		client:     &http.Client{Timeout: sendTimeout},
	}
}

// Send posts the notification as a colour-coded embed, with the event type in
// the footer.
func (d *DiscordSender) Send(ctx context.Context, n Notification) error {
	payload := discordPayload{Embeds: []discordEmbed{{
		Title:       n.Title,
		Description: n.Message,
		Color:       eventColor(n.Event),
		Footer:      &discordFooter{Text: n.Event},
	}}}
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("discord: marshal payload: %w", err)
	}

	return postJSON(ctx, d.client, "discord", d.webhookURL, body)
}

// Name returns the sender identifier.
func (d *DiscordSender) Name() string {
	return "discord"
}
