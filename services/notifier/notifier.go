package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strings"

	"github.com/rs/zerolog/log"
	"github.com/synapse-ai/synapse/shared/events"
	"github.com/synapse-ai/synapse/shared/refactor"
)

const telegramAPI = "https://api.telegram.org/bot"

// Telegram rejects captions longer than this.
const maxCaption = 1024

type notifier struct {
	api   string
	token string
	chat  string
	http  *http.Client
}

func (n *notifier) enabled() bool { return n.token != "" && n.chat != "" }

func (n *notifier) handle(ctx context.Context, routingKey string, body []byte) error {
	if routingKey == events.RefactorFailed {
		p, err := events.Unwrap[events.RefactorFailedPayload](body)
		if err != nil {
			return err
		}
		return n.send(ctx, failedMessage(p), "", "")
	}

	p, err := events.Unwrap[events.RefactorCompletePayload](body)
	if err != nil {
		return err
	}
	if p.Origin == events.OriginAPI {
		log.Debug().Str("job", p.JobID).Msg("synchronous result, no notification")
		return nil
	}
	log.Info().
		Str("job", p.JobID).
		Str("smell", p.Analysis.SmellDetected).
		Str("source", string(p.Analysis.Source)).
		Msg("sending notification")

	return n.send(ctx, completeMessage(p), "refactored"+extension(p), p.Analysis.RefactoredCode)
}

func (n *notifier) send(ctx context.Context, text, filename, attachment string) error {
	if !n.enabled() {
		log.Warn().Msg("TELEGRAM_BOT_TOKEN or TELEGRAM_CHAT_ID not set, skipping notification")
		return nil
	}
	if attachment != "" && len(text) <= maxCaption {
		return n.sendDocument(ctx, text, filename, attachment)
	}
	return n.sendMessage(ctx, text)
}

func completeMessage(p *events.RefactorCompletePayload) string {
	a := p.Analysis
	m := a.Metrics
	src := string(a.Source)
	if a.Route != "" {
		src += " via " + a.Route
	}
	return fmt.Sprintf(
		"✅ *%s*\n"+
			"Rating: *%s*  Complexity: %d → %d  Lines saved: %d\n"+
			"Source: %s\n"+
			"`job: %s`",
		a.SmellDetected, m.MaintainabilityRating, m.ComplexityBefore, m.ComplexityAfter, m.LinesSaved,
		src, p.JobID,
	)
}

func failedMessage(p *events.RefactorFailedPayload) string {
	return fmt.Sprintf("❌ Refactor failed: %s\n`job: %s`", p.Error, p.JobID)
}

// extension guesses a file suffix for the attachment so Telegram previews it with highlighting.
func extension(p *events.RefactorCompletePayload) string {
	if p.Analysis.Source == refactor.SourceSyntax {
		return ".txt"
	}
	if strings.Contains(p.Analysis.RefactoredCode, "interface ") {
		return ".ts"
	}
	return ".js"
}

// ── Telegram ──────────────────────────────────────────────────────────────────

func (n *notifier) sendMessage(ctx context.Context, text string) error {
	body, _ := json.Marshal(map[string]string{
		"chat_id":    n.chat,
		"text":       text,
		"parse_mode": "Markdown",
	})
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.api+n.token+"/sendMessage", bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	return n.do(req, "sendMessage")
}

func (n *notifier) sendDocument(ctx context.Context, caption, filename, content string) error {
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	_ = w.WriteField("chat_id", n.chat)
	_ = w.WriteField("caption", caption)
	_ = w.WriteField("parse_mode", "Markdown")
	part, err := w.CreateFormFile("document", filename)
	if err != nil {
		return err
	}
	if _, err := io.WriteString(part, content); err != nil {
		return err
	}
	if err := w.Close(); err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.api+n.token+"/sendDocument", &buf)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", w.FormDataContentType())
	return n.do(req, "sendDocument")
}

func (n *notifier) do(req *http.Request, method string) error {
	resp, err := n.http.Do(req)
	if err != nil {
		// the bot token is part of the URL
		return fmt.Errorf("telegram %s: request failed", method)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("telegram %s %d: %s", method, resp.StatusCode, b)
	}
	return nil
}
