package postgres

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/xraph/grove"

	"github.com/relayhq/eventrelay/catalog"
	"github.com/relayhq/eventrelay/deliverylog"
	"github.com/relayhq/eventrelay/event"
	"github.com/relayhq/eventrelay/id"
	"github.com/relayhq/eventrelay/internal/entity"
	"github.com/relayhq/eventrelay/subscription"
)

// --- Event Type models ---

type eventTypeModel struct {
	grove.BaseModel `grove:"table:eventrelay_event_types"`

	ID          string          `grove:"id,pk"`
	Name        string          `grove:"name,unique"`
	Description string          `grove:"description"`
	Schema      json.RawMessage `grove:"schema,type:jsonb"`
	CreatedAt   time.Time       `grove:"created_at"`
	UpdatedAt   time.Time       `grove:"updated_at"`
}

func toEventTypeModel(et *catalog.EventType) *eventTypeModel {
	return &eventTypeModel{
		ID:          et.ID.String(),
		Name:        et.Definition.Name,
		Description: et.Definition.Description,
		Schema:      et.Definition.Schema,
		CreatedAt:   et.CreatedAt,
		UpdatedAt:   et.UpdatedAt,
	}
}

func fromEventTypeModel(m *eventTypeModel) (*catalog.EventType, error) {
	etID, err := id.Parse(m.ID)
	if err != nil {
		return nil, fmt.Errorf("parse event type ID %q: %w", m.ID, err)
	}
	return &catalog.EventType{
		Entity: entity.Entity{
			CreatedAt: m.CreatedAt,
			UpdatedAt: m.UpdatedAt,
		},
		ID: etID,
		Definition: catalog.WebhookDefinition{
			Name:        m.Name,
			Description: m.Description,
			Schema:      m.Schema,
		},
	}, nil
}

// --- Event models ---

type eventModel struct {
	grove.BaseModel `grove:"table:eventrelay_events"`

	ID             string          `grove:"id,pk"`
	Type           string          `grove:"type"`
	Payload        json.RawMessage `grove:"payload,type:jsonb"`
	IdempotencyKey string          `grove:"idempotency_key"`
	ReceivedAt     time.Time       `grove:"received_at"`
	CreatedAt      time.Time       `grove:"created_at"`
	UpdatedAt      time.Time       `grove:"updated_at"`
}

func toEventModel(evt *event.Event) *eventModel {
	payload, _ := json.Marshal(evt.Payload) //nolint:errcheck // best-effort serialization
	return &eventModel{
		ID:             evt.ID.String(),
		Type:           evt.Type,
		Payload:        payload,
		IdempotencyKey: evt.IdempotencyKey,
		ReceivedAt:     evt.ReceivedAt,
		CreatedAt:      evt.CreatedAt,
		UpdatedAt:      evt.UpdatedAt,
	}
}

func fromEventModel(m *eventModel) (*event.Event, error) {
	evtID, err := id.Parse(m.ID)
	if err != nil {
		return nil, fmt.Errorf("parse event ID %q: %w", m.ID, err)
	}
	var payload any
	if len(m.Payload) > 0 {
		if unmarshalErr := json.Unmarshal(m.Payload, &payload); unmarshalErr != nil {
			return nil, fmt.Errorf("unmarshal event payload: %w", unmarshalErr)
		}
	}
	return &event.Event{
		Entity: entity.Entity{
			CreatedAt: m.CreatedAt,
			UpdatedAt: m.UpdatedAt,
		},
		ID:             evtID,
		Type:           m.Type,
		Payload:        payload,
		IdempotencyKey: m.IdempotencyKey,
		ReceivedAt:     m.ReceivedAt,
	}, nil
}

// --- Subscription models ---

type subscriptionModel struct {
	grove.BaseModel `grove:"table:eventrelay_subscriptions"`

	ID        string    `grove:"id,pk"`
	EventType string    `grove:"event_type"`
	TargetURL string    `grove:"target_url"`
	SecretKey string    `grove:"secret_key"`
	IsActive  bool      `grove:"is_active"`
	CreatedAt time.Time `grove:"created_at"`
	UpdatedAt time.Time `grove:"updated_at"`
}

func toSubscriptionModel(sub *subscription.Subscription) *subscriptionModel {
	return &subscriptionModel{
		ID:        sub.ID.String(),
		EventType: sub.EventType,
		TargetURL: sub.TargetURL,
		SecretKey: sub.SecretKey,
		IsActive:  sub.IsActive,
		CreatedAt: sub.CreatedAt,
		UpdatedAt: sub.UpdatedAt,
	}
}

func fromSubscriptionModel(m *subscriptionModel) (*subscription.Subscription, error) {
	subID, err := id.Parse(m.ID)
	if err != nil {
		return nil, fmt.Errorf("parse subscription ID %q: %w", m.ID, err)
	}
	return &subscription.Subscription{
		Entity: entity.Entity{
			CreatedAt: m.CreatedAt,
			UpdatedAt: m.UpdatedAt,
		},
		ID:        subID,
		EventType: m.EventType,
		TargetURL: m.TargetURL,
		SecretKey: m.SecretKey,
		IsActive:  m.IsActive,
	}, nil
}

// --- Delivery log models ---

type deliveryLogModel struct {
	grove.BaseModel `grove:"table:eventrelay_delivery_logs"`

	ID                 string    `grove:"id,pk"`
	EventID            string    `grove:"event_id"`
	SubscriptionID     string    `grove:"subscription_id"`
	Status             string    `grove:"status"`
	AttemptCount       int       `grove:"attempt_count"`
	AttemptedAt        time.Time `grove:"attempted_at"`
	ResponseStatusCode *int      `grove:"response_status_code"`
	ResponseBody       *string   `grove:"response_body"`
	ErrorMessage       *string   `grove:"error_message"`
}

func toDeliveryLogModel(l *deliverylog.DeliveryLog) *deliveryLogModel {
	return &deliveryLogModel{
		ID:                 l.ID.String(),
		EventID:            l.EventID.String(),
		SubscriptionID:     l.SubscriptionID.String(),
		Status:             string(l.Status),
		AttemptCount:       l.AttemptCount,
		AttemptedAt:        l.AttemptedAt,
		ResponseStatusCode: l.ResponseStatusCode,
		ResponseBody:       l.ResponseBody,
		ErrorMessage:       l.ErrorMessage,
	}
}

func fromDeliveryLogModel(m *deliveryLogModel) (*deliverylog.DeliveryLog, error) {
	logID, err := id.Parse(m.ID)
	if err != nil {
		return nil, fmt.Errorf("parse delivery log ID %q: %w", m.ID, err)
	}
	evtID, err := id.Parse(m.EventID)
	if err != nil {
		return nil, fmt.Errorf("parse event ID %q: %w", m.EventID, err)
	}
	subID, err := id.Parse(m.SubscriptionID)
	if err != nil {
		return nil, fmt.Errorf("parse subscription ID %q: %w", m.SubscriptionID, err)
	}
	return &deliverylog.DeliveryLog{
		ID:                 logID,
		EventID:            evtID,
		SubscriptionID:     subID,
		Status:             deliverylog.Status(m.Status),
		AttemptCount:       m.AttemptCount,
		AttemptedAt:        m.AttemptedAt,
		ResponseStatusCode: m.ResponseStatusCode,
		ResponseBody:       m.ResponseBody,
		ErrorMessage:       m.ErrorMessage,
	}, nil
}
