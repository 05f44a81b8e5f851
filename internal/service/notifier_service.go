package service

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/microcosm-cc/bluemonday"
	"go.uber.org/zap"

	"github.com/noah-isme/store-incident-api/internal/models"
	"github.com/noah-isme/store-incident-api/pkg/jobs"
)

const webhookJobType = "report.webhook"

type webhookReportRepository interface {
	FindByUUID(ctx context.Context, uuid string) (*models.Report, error)
	MarkWebhookSent(ctx context.Context, uuid string) error
}

// NotifierConfig controls webhook delivery. RetryDelay is the base delay between attempts and
// grows linearly with each retry.
type NotifierConfig struct {
	Enabled    bool
	URL        string
	Timeout    time.Duration
	Workers    int
	Retries    int
	RetryDelay time.Duration
}

// NotifierService posts a chat card for newly committed reports. Delivery runs on a background
// queue and never touches the request that produced the report.
type NotifierService struct {
	repo    webhookReportRepository
	cache   *CacheService
	metrics *MetricsService
	logger  *zap.Logger
	config  NotifierConfig
	client  *http.Client
	policy  *bluemonday.Policy
	queue   *jobs.Queue
}

// NewNotifierService constructs a NotifierService. Start must be called before Notify enqueues.
func NewNotifierService(repo webhookReportRepository, cache *CacheService, metrics *MetricsService, logger *zap.Logger, config NotifierConfig) *NotifierService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if config.Timeout <= 0 {
		config.Timeout = 10 * time.Second
	}
	if config.RetryDelay <= 0 {
		config.RetryDelay = 2 * time.Second
	}
	svc := &NotifierService{
		repo:    repo,
		cache:   cache,
		metrics: metrics,
		logger:  logger,
		config:  config,
		client:  &http.Client{Timeout: config.Timeout},
		policy:  bluemonday.StrictPolicy(),
	}
	svc.queue = jobs.NewQueue("webhooks", svc.deliver, jobs.QueueConfig{
		Workers:    config.Workers,
		MaxRetries: config.Retries,
		RetryDelay: config.RetryDelay,
		OnGiveUp:   func(jobs.Job, error) { svc.metrics.RecordWebhook(false) },
		Logger:     logger,
	})
	return svc
}

// Enabled reports whether notifications are sent at all.
func (s *NotifierService) Enabled() bool {
	return s != nil && s.config.Enabled && s.config.URL != ""
}

// Start launches the delivery workers.
func (s *NotifierService) Start(ctx context.Context) {
	if !s.Enabled() {
		return
	}
	s.queue.Start(ctx)
}

// Stop waits for in-flight deliveries to finish.
func (s *NotifierService) Stop() {
	if !s.Enabled() {
		return
	}
	s.queue.Stop()
}

// Notify schedules a card for report.
func (s *NotifierService) Notify(report *models.Report) {
	if !s.Enabled() || report == nil || report.IsWebhookSent {
		return
	}
	err := s.queue.Enqueue(jobs.Job{ID: report.UUID, Type: webhookJobType, Payload: report.UUID})
	if err != nil {
		s.logger.Warn("failed to enqueue webhook", zap.String("uuid", report.UUID), zap.Error(err))
	}
}

func (s *NotifierService) deliver(ctx context.Context, job jobs.Job) error {
	uuid, _ := job.Payload.(string)
	report, err := s.repo.FindByUUID(ctx, uuid)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			s.logger.Info("webhook skipped, report removed", zap.String("uuid", uuid))
			return nil
		}
		return err
	}
	if report.IsWebhookSent || report.IsDeleted {
		return nil
	}

	if err := s.post(ctx, s.card(report)); err != nil {
		return err
	}
	s.metrics.RecordWebhook(true)

	if err := s.repo.MarkWebhookSent(ctx, uuid); err != nil {
		s.logger.Warn("failed to flag webhook as sent", zap.String("uuid", uuid), zap.Error(err))
		return nil
	}
	s.cache.Invalidate(ctx, ReportCachePattern)
	s.logger.Info("webhook delivered", zap.String("uuid", uuid), zap.Int("attempt", job.Attempt+1))
	return nil
}

func (s *NotifierService) post(ctx context.Context, payload interface{}) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encode webhook card: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.config.URL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build webhook request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("post webhook: %w", err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("post webhook: unexpected status %d", resp.StatusCode)
	}
	return nil
}

type cardMessage struct {
	Type        string           `json:"type"`
	Attachments []cardAttachment `json:"attachments"`
}

type cardAttachment struct {
	ContentType string      `json:"contentType"`
	Content     cardContent `json:"content"`
}

type cardContent struct {
	Schema  string        `json:"$schema"`
	Type    string        `json:"type"`
	Version string        `json:"version"`
	Body    []interface{} `json:"body"`
}

type cardText struct {
	Type   string `json:"type"`
	Text   string `json:"text"`
	Weight string `json:"weight,omitempty"`
	Size   string `json:"size,omitempty"`
	Wrap   bool   `json:"wrap"`
}

type cardFactSet struct {
	Type  string     `json:"type"`
	Facts []cardFact `json:"facts"`
}

type cardFact struct {
	Title string `json:"title"`
	Value string `json:"value"`
}

func (s *NotifierService) card(report *models.Report) cardMessage {
	clean := func(v string) string { return strings.TrimSpace(s.policy.Sanitize(v)) }

	facts := []cardFact{
		{Title: "Stores", Value: strings.Join(report.Store.Numbers, ", ")},
		{Title: "Types", Value: strings.Join(report.Incident.Types, ", ")},
		{Title: "Status", Value: report.Call.Status},
		{Title: "Employee", Value: clean(report.Store.Employee.Name)},
	}
	if !report.Incident.Transaction.IsEmpty() {
		facts = append(facts, cardFact{Title: "Transaction", Value: clean(report.Incident.Transaction.Number)})
	}

	return cardMessage{
		Type: "message",
		Attachments: []cardAttachment{{
			ContentType: "application/vnd.microsoft.card.adaptive",
			Content: cardContent{
				Schema:  "http://adaptivecards.io/schemas/adaptive-card.json",
				Type:    "AdaptiveCard",
				Version: "1.4",
				Body: []interface{}{
					cardText{Type: "TextBlock", Text: clean(report.Incident.Title), Weight: "Bolder", Size: "Medium", Wrap: true},
					cardFactSet{Type: "FactSet", Facts: facts},
					cardText{Type: "TextBlock", Text: clean(report.Incident.Details), Wrap: true},
				},
			},
		}},
	}
}
