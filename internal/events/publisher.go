// Package events publishes pipeline outcomes to Kafka for downstream
// consumers (case management, alerting, audit). Publishing is best-effort:
// a broker outage never fails an ingestion run.
package events

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/IBM/sarama"
	"github.com/google/uuid"

	"github.com/banking/compliance-sentinel/internal/config"
	"github.com/banking/compliance-sentinel/internal/domain"
	"github.com/banking/compliance-sentinel/internal/pkg/logger"
)

// Publisher emits domain events. A nil Publisher is a valid no-op, so
// callers never need to branch on whether Kafka is enabled.
type Publisher struct {
	producer sarama.SyncProducer
	cfg      config.KafkaConfig
	log      *logger.Logger
}

// NewPublisher connects a synchronous producer to the configured brokers.
func NewPublisher(cfg config.KafkaConfig, log *logger.Logger) (*Publisher, error) {
	sc := sarama.NewConfig()
	sc.Producer.RequiredAcks = sarama.WaitForAll
	sc.Producer.Retry.Max = 3
	sc.Producer.Return.Successes = true
	sc.Version = sarama.V2_8_0_0

	producer, err := sarama.NewSyncProducer(cfg.Brokers, sc)
	if err != nil {
		return nil, fmt.Errorf("create kafka producer: %w", err)
	}

	return &Publisher{
		producer: producer,
		cfg:      cfg,
		log:      log.Named("events"),
	}, nil
}

// Close shuts the underlying producer down.
func (p *Publisher) Close() error {
	if p == nil {
		return nil
	}
	return p.producer.Close()
}

// AnalysisCompletedEvent is emitted after every ingestion run.
type AnalysisCompletedEvent struct {
	EventID    uuid.UUID       `json:"event_id"`
	RunID      uuid.UUID       `json:"run_id"`
	UserID     string          `json:"user_id"`
	RiskScore  int             `json:"risk_score"`
	RiskBand   domain.RiskBand `json:"risk_band"`
	IsAnomaly  bool            `json:"is_anomaly"`
	FlagCount  int             `json:"flag_count"`
	OccurredAt time.Time       `json:"occurred_at"`
}

// RiskAlertEvent is emitted for HIGH band results only.
type RiskAlertEvent struct {
	EventID    uuid.UUID `json:"event_id"`
	RunID      uuid.UUID `json:"run_id"`
	UserID     string    `json:"user_id"`
	RiskScore  int       `json:"risk_score"`
	Flags      []string  `json:"flags"`
	Reasoning  string    `json:"reasoning"`
	OccurredAt time.Time `json:"occurred_at"`
}

// DraftLifecycleEvent is emitted when a compliance draft is created,
// approved, or rejected.
type DraftLifecycleEvent struct {
	EventID          uuid.UUID          `json:"event_id"`
	DraftID          uuid.UUID          `json:"draft_id"`
	JurisdictionCode string             `json:"jurisdiction_code"`
	RegulationID     string             `json:"regulation_id"`
	Status           domain.DraftStatus `json:"status"`
	ProposedVersion  string             `json:"proposed_version"`
	OccurredAt       time.Time          `json:"occurred_at"`
}

// PublishAnalysisCompleted emits the run summary, plus a risk alert when
// the band is HIGH.
func (p *Publisher) PublishAnalysisCompleted(runID uuid.UUID, userID string, result *domain.AnomalyResult) {
	if p == nil {
		return
	}

	p.emit(p.cfg.AnalysisTopic, userID, AnalysisCompletedEvent{
		EventID:    uuid.New(),
		RunID:      runID,
		UserID:     userID,
		RiskScore:  result.RiskScore,
		RiskBand:   result.RiskBand,
		IsAnomaly:  result.IsAnomaly,
		FlagCount:  len(result.Flags),
		OccurredAt: time.Now().UTC(),
	})

	if result.RiskBand == domain.BandHigh {
		p.emit(p.cfg.AlertsTopic, userID, RiskAlertEvent{
			EventID:    uuid.New(),
			RunID:      runID,
			UserID:     userID,
			RiskScore:  result.RiskScore,
			Flags:      result.Flags,
			Reasoning:  result.Reasoning,
			OccurredAt: time.Now().UTC(),
		})
	}
}

// PublishDraftLifecycle emits a draft creation or resolution.
func (p *Publisher) PublishDraftLifecycle(draft *domain.ComplianceDraft) {
	if p == nil {
		return
	}
	p.emit(p.cfg.ComplianceTopic, draft.JurisdictionCode, DraftLifecycleEvent{
		EventID:          uuid.New(),
		DraftID:          draft.ID,
		JurisdictionCode: draft.JurisdictionCode,
		RegulationID:     draft.RegulationID,
		Status:           draft.Status,
		ProposedVersion:  draft.ProposedVersion,
		OccurredAt:       time.Now().UTC(),
	})
}

func (p *Publisher) emit(topic, key string, event any) {
	payload, err := json.Marshal(event)
	if err != nil {
		p.log.Error("marshal event", logger.ErrorField(err), logger.StringField("topic", topic))
		return
	}

	msg := &sarama.ProducerMessage{
		Topic: topic,
		Key:   sarama.StringEncoder(key),
		Value: sarama.ByteEncoder(payload),
	}

	if _, _, err := p.producer.SendMessage(msg); err != nil {
		p.log.Error("publish event", logger.ErrorField(err), logger.StringField("topic", topic))
	}
}
