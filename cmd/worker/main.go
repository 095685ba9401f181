// cmd/worker/main.go
package main

import (
	"context"
	"encoding/json"
	"os"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/streadway/amqp"

	"github.com/gitter-badger/grapevine-go/internal/config"
	"github.com/gitter-badger/grapevine-go/internal/db"
	"github.com/gitter-badger/grapevine-go/internal/queue"
	"github.com/gitter-badger/grapevine-go/internal/repository"
	"github.com/gitter-badger/grapevine-go/internal/service"
	"github.com/gitter-badger/grapevine-go/internal/transport"
)

// QueueJob is the broker payload for one due Sendable.
type QueueJob struct {
	SendableID int `json:"sendable_id"`
}

const maxRetries = 3

func main() {
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load config")
	}

	conn, err := db.Connect(cfg.DatabaseURL)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to DB")
	}
	defer conn.Close()

	dispatcher := &service.Dispatcher{
		SendableRepo: &repository.SendableRepository{DB: conn},
		TemplateRepo: &repository.TemplateRepository{DB: conn},
		MessageRepo:  &repository.MessageRepository{DB: conn},
		Transport:    transport.NewMailgun(cfg.Mailgun),
		FromAddress:  cfg.Mailgun.FromAddress,
	}

	amqpConn, err := amqp.Dial(cfg.AMQPURL)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to RabbitMQ")
	}
	defer amqpConn.Close()

	ch, err := amqpConn.Channel()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to open a channel")
	}
	defer ch.Close()

	q, err := ch.QueueDeclare(
		queue.TopicSendableDispatch, // name
		true,                        // durable
		false,                       // delete when unused
		false,                       // exclusive
		false,                       // no-wait
		nil,                         // arguments
	)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to declare queue")
	}

	msgs, err := ch.Consume(
		q.Name,
		"",
		false, // autoAck = false for reliability
		false,
		false,
		false,
		nil,
	)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to register consumer")
	}

	log.Info().Str("queue", q.Name).Msg("Worker running, waiting for messages...")

	for d := range msgs {
		var job QueueJob
		if err := json.Unmarshal(d.Body, &job); err != nil {
			log.Warn().Err(err).Msg("invalid job payload")
			d.Ack(false)
			continue
		}

		if err := dispatcher.Dispatch(context.Background(), job.SendableID); err != nil {
			log.Warn().Err(err).Int("sendable_id", job.SendableID).Msg("dispatch failed")

			var retryCount int32
			if v, ok := d.Headers["x-retry-count"].(int32); ok {
				retryCount = v
			}
			if retryCount < maxRetries {
				d.Nack(false, true) // requeue
				continue
			}
		}

		d.Ack(false)
	}
}
