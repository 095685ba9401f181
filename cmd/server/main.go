// cmd/server/main.go
package main

import (
	"net/http"
	"os"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/gitter-badger/grapevine-go/internal/config"
	"github.com/gitter-badger/grapevine-go/internal/controller"
	"github.com/gitter-badger/grapevine-go/internal/db"
	"github.com/gitter-badger/grapevine-go/internal/queue"
	"github.com/gitter-badger/grapevine-go/internal/repository"
	"github.com/gitter-badger/grapevine-go/internal/service"
	"github.com/gitter-badger/grapevine-go/internal/transport"
)

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

	sendableRepo := &repository.SendableRepository{DB: conn}
	templateRepo := &repository.TemplateRepository{DB: conn}
	messageRepo := &repository.MessageRepository{DB: conn}
	operatorRepo := &repository.OperatorRepository{DB: conn}
	auditRepo := &repository.AuditRepository{DB: conn}

	mailgun := transport.NewMailgun(cfg.Mailgun)

	sendService := &service.SendService{
		SendableRepo: sendableRepo,
		TemplateRepo: templateRepo,
		MessageRepo:  messageRepo,
		AuditRepo:    auditRepo,
		Transport:    mailgun,
		FromAddress:  cfg.Mailgun.FromAddress,
	}
	bulkEditService := &service.BulkEditService{SendableRepo: sendableRepo}
	freezeService := &service.FreezeService{
		SendableRepo: sendableRepo,
		TemplateRepo: templateRepo,
		AuditRepo:    auditRepo,
	}
	dispatcher := &service.Dispatcher{
		SendableRepo: sendableRepo,
		TemplateRepo: templateRepo,
		MessageRepo:  messageRepo,
		Transport:    mailgun,
		FromAddress:  cfg.Mailgun.FromAddress,
	}

	q := queue.NewInMemoryQueue()
	queue.StartDispatchSubscriber(q, dispatcher)

	sendableController := &controller.SendableController{
		SendableRepo:    sendableRepo,
		TemplateRepo:    templateRepo,
		OperatorRepo:    operatorRepo,
		AuditRepo:       auditRepo,
		SendService:     sendService,
		BulkEditService: bulkEditService,
		FreezeService:   freezeService,
		Queue:           q,
	}

	r := chi.NewRouter()

	// Sendable routes
	r.Get("/sendables", sendableController.ListSendables)
	r.Get("/sendables/{id}", sendableController.GetSendable)
	r.Get("/sendables/{id}/render", sendableController.RenderPreview)
	r.Post("/sendables/{id}/send-test", sendableController.SendTest)
	r.Post("/sendables/{id}/send-real", sendableController.SendReal)
	r.Post("/sendables/{id}/freeze-template", sendableController.FreezeTemplate)
	r.Post("/sendables/{id}/dispatch", sendableController.EnqueueDispatch)
	r.Post("/sendables/bulk-edits", sendableController.BulkEdits)

	log.Info().Str("port", cfg.Port).Msg("🚀 Server running")
	if err := http.ListenAndServe(":"+cfg.Port, r); err != nil {
		log.Fatal().Err(err).Msg("server stopped")
	}
}
