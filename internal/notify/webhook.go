// Package notify posts run summaries to a chat webhook.
package notify

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	jsoniter "github.com/json-iterator/go"

	"github.com/bamsammich/alist-sync/internal/stats"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// Webhook sends text messages in the {"msg_type":"text"} format accepted
// by Feishu/Lark style bots.
type Webhook struct {
	url  string
	http *resty.Client
	log  *slog.Logger
}

type message struct {
	MsgType string  `json:"msg_type"`
	Content content `json:"content"`
}

type content struct {
	Text string `json:"text"`
}

// NewWebhook returns a Webhook posting to url. Failed posts are retried
// twice before giving up.
func NewWebhook(url string, timeout time.Duration, logger *slog.Logger) *Webhook {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	if logger == nil {
		logger = slog.Default()
	}
	rc := resty.New().
		SetTimeout(timeout).
		SetRetryCount(2).
		SetRetryWaitTime(500 * time.Millisecond).
		SetJSONMarshaler(json.Marshal).
		SetJSONUnmarshaler(json.Unmarshal).
		AddRetryCondition(func(r *resty.Response, err error) bool {
			return err != nil || r.StatusCode() >= http.StatusInternalServerError
		})
	return &Webhook{url: url, http: rc, log: logger}
}

// Send posts text. A nil Webhook is a no-op.
func (w *Webhook) Send(ctx context.Context, text string) error {
	if w == nil || w.url == "" {
		return nil
	}
	resp, err := w.http.R().
		SetContext(ctx).
		SetHeader("Content-Type", "application/json").
		SetBody(message{MsgType: "text", Content: content{Text: text}}).
		Post(w.url)
	if err != nil {
		return fmt.Errorf("webhook: %w", err)
	}
	if resp.IsError() {
		return fmt.Errorf("webhook: %s: %s", resp.Status(), strings.TrimSpace(resp.String()))
	}
	w.log.Debug("webhook sent", "status", resp.StatusCode())
	return nil
}

// Summary renders the notice text for a finished run.
func Summary(owner, mode string, s stats.Snapshot, runErr error) string {
	var b strings.Builder
	state := "finished"
	switch {
	case runErr != nil:
		state = "aborted"
	case s.Failed() > 0:
		state = "finished with failures"
	}
	fmt.Fprintf(&b, "alist-sync %s %s", mode, state)
	if owner != "" {
		fmt.Fprintf(&b, " (%s)", owner)
	}
	fmt.Fprintf(&b, "\nsucceeded: %d\nfailed: %d", s.Succeeded(), s.Failed())
	if s.ItemsRejected > 0 {
		fmt.Fprintf(&b, "\nrejected: %d", s.ItemsRejected)
	}
	if s.Deletes > 0 {
		fmt.Fprintf(&b, "\ndeleted: %d", s.Deletes)
	}
	if s.Backups > 0 {
		fmt.Fprintf(&b, "\nbacked up: %d", s.Backups)
	}
	fmt.Fprintf(&b, "\ntransferred: %s\nelapsed: %s",
		stats.FormatBytes(s.BytesCopied), s.Elapsed.Round(time.Second))
	if runErr != nil {
		fmt.Fprintf(&b, "\nerror: %v", runErr)
	}
	return b.String()
}
