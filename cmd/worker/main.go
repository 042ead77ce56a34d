package main

import (
	"database/sql"
	"log"

	_ "github.com/lib/pq"
	"github.com/redis/go-redis/v9"
	"go.temporal.io/sdk/client"
	"go.temporal.io/sdk/worker"

	"verifyengine/internal/collaborators"
	"verifyengine/internal/config"
	"verifyengine/internal/journal"
	"verifyengine/internal/metrics"
	"verifyengine/internal/orchestrator"
	"verifyengine/internal/protocols"
	"verifyengine/internal/tokenstore"
	"verifyengine/internal/verifierstore"
)

func main() {
	cfg := config.Load()

	c, err := client.Dial(client.Options{
		HostPort: cfg.TemporalHostPort,
	})
	if err != nil {
		log.Fatalf("unable to create Temporal client: %v", err)
	}
	defer c.Close()

	db, err := sql.Open("postgres", cfg.PostgresDSN)
	if err != nil {
		log.Fatalf("unable to open postgres: %v", err)
	}
	defer db.Close()

	rdb := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
	defer rdb.Close()

	journalStore := journal.NewPostgresStore(db)
	tokenStore := tokenstore.NewRedisStore(rdb)
	verifierStore := verifierstore.NewPostgresStore(db)
	m := metrics.New()

	w := worker.New(c, cfg.TaskQueue, worker.Options{})

	// Register workflows (core worker pattern).
	w.RegisterWorkflow(orchestrator.SubjectOrchestrator)
	w.RegisterWorkflow(protocols.CodeChallenge)
	w.RegisterWorkflow(protocols.TwoPartyInPerson)
	w.RegisterWorkflow(protocols.HumanReview)
	w.RegisterWorkflow(protocols.Attestation)

	orchestratorActs := &orchestrator.Activities{
		Journal:  journalStore,
		Notifier: collaborators.LogNotifier{},
		Metrics:  m,
	}
	w.RegisterActivity(orchestratorActs)

	protocolActs := &protocols.Activities{
		Journal:   journalStore,
		Verifiers: verifierStore,
		Tokens:    tokenStore,
		Notifier:  collaborators.LogNotifier{},
		Codes:     collaborators.LogCodeDelivery{},
		Reviews:   collaborators.LogReviewQueue{},
		Metrics:   m,
	}
	w.RegisterActivity(protocolActs)

	log.Printf("worker started (taskQueue=%s)\n", cfg.TaskQueue)
	if err := w.Run(worker.InterruptCh()); err != nil {
		log.Fatalf("worker exited: %v", err)
	}
}
