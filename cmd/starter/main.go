package main

import (
	"context"
	"flag"
	"log"
	"time"

	"go.temporal.io/sdk/client"

	"verifyengine/internal/config"
	"verifyengine/internal/gateway"
	"verifyengine/internal/model"
	"verifyengine/internal/tokenstore"
)

// This is a simple starter that starts an email verification for a
// subject and prints its status, for demo/testing purposes. It does not
// relay the code, so the started run stays awaiting it. In production, these calls
// arrive over cmd/api's HTTP surface rather than this CLI.
func main() {
	var subjectID, target string
	flag.StringVar(&subjectID, "subject", "SUBJECT-123", "subject id")
	flag.StringVar(&target, "target", "demo@example.com", "email target for the code challenge")
	flag.Parse()

	cfg := config.Load()

	c, err := client.Dial(client.Options{HostPort: cfg.TemporalHostPort})
	if err != nil {
		log.Fatalf("unable to create Temporal client: %v", err)
	}
	defer c.Close()

	gw := &gateway.Gateway{
		Client:    c,
		TaskQueue: cfg.TaskQueue,
		Tokens:    tokenstore.NewMemoryStore(),
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	res, err := gw.StartMethod(ctx, subjectID, model.Individual, model.Email, map[string]any{"target": target})
	if err != nil {
		log.Fatalf("unable to start method: %v", err)
	}
	if res.Rejected != "" {
		log.Fatalf("start_method rejected: %s", res.Rejected)
	}
	log.Printf("started email verification: subject=%s protocolRunID=%s\n", subjectID, res.ProtocolRunID)

	status, err := gw.Status(ctx, subjectID)
	if err != nil {
		log.Fatalf("unable to get status: %v", err)
	}
	log.Printf("status: score=%d level=%s nextLevel=%s pointsNeeded=%d\n",
		status.Score, status.Level, status.NextLevel.TargetLevel, status.NextLevel.PointsNeeded)
}
