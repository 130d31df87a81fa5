// Package notify defines the NotificationSink capability (spec.md §6)
// the Alert Engine dispatches critical/emergency alerts through, plus
// a webhook-backed implementation following the same HTTP request-
// building idiom as DemeterEye's processor_client.go. No pack example
// wires a dedicated push/SMS/email SDK, so this concern is carried on
// net/http rather than a speculative third-party client (see
// DESIGN.md).
package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/demeterfield/pipeline/internal/errkind"
	"github.com/demeterfield/pipeline/internal/models"
	"github.com/rs/zerolog"
)

// Sink is the capability interface the Alert Engine depends on.
// Dispatch is best-effort, at-least-once: a caller MAY retry a failed
// dispatch, and the receiving side dedups on alert.ID.
type Sink interface {
	Dispatch(ctx context.Context, alert models.Alert) error
}

// WebhookSink posts the alert as JSON to a configured URL, carrying
// the alert id as an idempotency key header.
type WebhookSink struct {
	url  string
	http *http.Client
	log  zerolog.Logger
}

func NewWebhookSink(url string, log zerolog.Logger) *WebhookSink {
	return &WebhookSink{
		url:  url,
		http: &http.Client{Timeout: 5 * time.Second},
		log:  log.With().Str("component", "notification_sink").Logger(),
	}
}

func (s *WebhookSink) Dispatch(ctx context.Context, alert models.Alert) error {
	if s.url == "" {
		s.log.Debug().Str("alertId", alert.ID).Msg("notification sink disabled, skipping dispatch")
		return nil
	}

	body, err := json.Marshal(alert)
	if err != nil {
		return errkind.New(errkind.NotificationFailure, alert.ID, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.url, bytes.NewReader(body))
	if err != nil {
		return errkind.New(errkind.NotificationFailure, alert.ID, err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Idempotency-Key", alert.ID)

	resp, err := s.http.Do(req)
	if err != nil {
		s.log.Warn().Err(err).Str("alertId", alert.ID).Msg("notification dispatch failed")
		return errkind.New(errkind.NotificationFailure, alert.ID, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return errkind.New(errkind.NotificationFailure, alert.ID, fmt.Errorf("notification endpoint returned %s", resp.Status))
	}
	return nil
}

// QueuedSink wraps a Sink and swallows dispatch failures into a
// reusable in-memory queue for later re-dispatch, matching spec.md
// §7's "NotificationFailure: queued for later re-dispatch" recovery.
type QueuedSink struct {
	inner Sink
	log   zerolog.Logger

	pending []models.Alert
}

func NewQueuedSink(inner Sink, log zerolog.Logger) *QueuedSink {
	return &QueuedSink{inner: inner, log: log.With().Str("component", "notification_queue").Logger()}
}

func (q *QueuedSink) Dispatch(ctx context.Context, alert models.Alert) error {
	if err := q.inner.Dispatch(ctx, alert); err != nil {
		q.log.Warn().Str("alertId", alert.ID).Msg("queuing alert for re-dispatch")
		q.pending = append(q.pending, alert)
		return nil
	}
	return nil
}

// Flush retries every queued alert once, dropping successes.
func (q *QueuedSink) Flush(ctx context.Context) {
	remaining := q.pending[:0]
	for _, alert := range q.pending {
		if err := q.inner.Dispatch(ctx, alert); err != nil {
			remaining = append(remaining, alert)
		}
	}
	q.pending = remaining
}
