// Package notify publishes pipeline run events to an optional RabbitMQ
// sink. Publishing is strictly best effort: a broken broker never fails a
// run.
package notify

import (
	"context"
	"encoding/json"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/rs/zerolog/log"

	"github.com/valleybit/kiosk-dca/internal/model"
)

const queueRunEvents = "dca-run-events"

type RunEvent struct {
	Pattern string            `json:"pattern"`
	Data    *model.RunSummary `json:"data"`
}

type Notifier struct {
	conn *amqp.Connection
}

// New connects to the broker and declares the event queue. An empty URL
// returns a nil Notifier, which is safe to use and publishes nothing.
func New(rabbitURL string) (*Notifier, error) {
	if rabbitURL == "" {
		return nil, nil
	}

	conn, err := amqp.Dial(rabbitURL)
	if err != nil {
		return nil, err
	}

	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, err
	}
	defer ch.Close()

	if _, err := ch.QueueDeclare(queueRunEvents, true, false, false, false, nil); err != nil {
		conn.Close()
		return nil, err
	}

	return &Notifier{conn: conn}, nil
}

func (n *Notifier) PublishRunSummary(ctx context.Context, summary *model.RunSummary) {
	if n == nil {
		return
	}

	body, err := json.Marshal(RunEvent{Pattern: "pipeline-run", Data: summary})
	if err != nil {
		log.Error().Err(err).Msg("marshal run event")
		return
	}

	ch, err := n.conn.Channel()
	if err != nil {
		log.Warn().Err(err).Msg("notification channel unavailable, run event dropped")
		return
	}
	defer ch.Close()

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	err = ch.PublishWithContext(ctx, "", queueRunEvents, false, false, amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		Body:         body,
	})
	if err != nil {
		log.Warn().Err(err).Msg("run event publish failed")
		return
	}

	log.Debug().Str("queue", queueRunEvents).Msg("run event published")
}

func (n *Notifier) Close() {
	if n == nil {
		return
	}
	n.conn.Close()
}
