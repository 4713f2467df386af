package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"time"
)

const (
	// Discord caps embed descriptions at 4096 characters.
	maxEmbedDescription = 4096
	embedColor          = 0xF5A623
)

type discordImage struct {
	URL string `json:"url"`
}

type discordEmbed struct {
	Title       string        `json:"title,omitempty"`
	Description string        `json:"description,omitempty"`
	Color       int           `json:"color"`
	Timestamp   string        `json:"timestamp,omitempty"`
	Image       *discordImage `json:"image,omitempty"`
}

type discordPayload struct {
	Content string         `json:"content,omitempty"`
	Embeds  []discordEmbed `json:"embeds,omitempty"`
}

// DiscordSender posts notifications to a Discord webhook as embeds.
type DiscordSender struct {
	webhookURL string
	client     *http.Client
	now        func() time.Time
}

// NewDiscordSender creates a DiscordSender for webhookURL.
func NewDiscordSender(webhookURL string) *DiscordSender {
	return &DiscordSender{
		webhookURL: webhookURL,
		client:     &http.Client{Timeout: 10 * time.Second},
		now:        time.Now,
	}
}

// Send posts one embed with title as heading and message as body.
func (d *DiscordSender) Send(ctx context.Context, title, message string) error {
	body, err := json.Marshal(discordPayload{Embeds: []discordEmbed{d.embed(title, message)}})
	if err != nil {
		return fmt.Errorf("discord: encode: %w", err)
	}
	return d.post(ctx, "application/json", body)
}

// SendImage uploads png as chart.png and shows it inside an embed.
func (d *DiscordSender) SendImage(ctx context.Context, caption string, png []byte) error {
	embed := d.embed(caption, "")
	embed.Image = &discordImage{URL: "attachment://chart.png"}
	payload, err := json.Marshal(discordPayload{Embeds: []discordEmbed{embed}})
	if err != nil {
		return fmt.Errorf("discord: encode: %w", err)
	}

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	if err := mw.WriteField("payload_json", string(payload)); err != nil {
		return fmt.Errorf("discord: build form: %w", err)
	}
	part, err := mw.CreateFormFile("files[0]", "chart.png")
	if err != nil {
		return fmt.Errorf("discord: build form: %w", err)
	}
	if _, err := part.Write(png); err != nil {
		return fmt.Errorf("discord: build form: %w", err)
	}
	if err := mw.Close(); err != nil {
		return fmt.Errorf("discord: build form: %w", err)
	}
	return d.post(ctx, mw.FormDataContentType(), buf.Bytes())
}

// Name returns the sender identifier.
func (d *DiscordSender) Name() string { return "discord" }

func (d *DiscordSender) embed(title, description string) discordEmbed {
	if r := []rune(description); len(r) > maxEmbedDescription {
		description = string(r[:maxEmbedDescription-1]) + "…"
	}
	return discordEmbed{
		Title:       title,
		Description: description,
		Color:       embedColor,
		Timestamp:   d.now().UTC().Format(time.RFC3339),
	}
}

func (d *DiscordSender) post(ctx context.Context, contentType string, body []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, d.webhookURL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("discord: new request: %w", err)
	}
	req.Header.Set("Content-Type", contentType)

	resp, err := d.client.Do(req)
	if err != nil {
		return fmt.Errorf("discord: post: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode/100 != 2 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("discord: status %d: %s", resp.StatusCode, bytes.TrimSpace(snippet))
	}
	return nil
}
