package gateway

import (
	"context"
	"fmt"

	"golang.org/x/sync/errgroup"

	"verifyengine/internal/model"
	"verifyengine/internal/orchestrator"
	"verifyengine/internal/scoring"
)

func (g *Gateway) query(ctx context.Context, subjectID, queryType string, args []interface{}, result interface{}) error {
	run, err := g.ensureOrchestrator(ctx, subjectID, model.Individual)
	if err != nil {
		return err
	}
	qr, err := g.Client.QueryWorkflow(ctx, run.GetID(), run.GetRunID(), queryType, args...)
	if err != nil {
		return fmt.Errorf("query %s: %w", queryType, err)
	}
	return qr.Get(result)
}

// Score answers Query.Score.
func (g *Gateway) Score(ctx context.Context, subjectID string) (int, error) {
	var score int
	err := g.query(ctx, subjectID, orchestrator.QueryScore, nil, &score)
	return score, err
}

// Level answers Query.Level.
func (g *Gateway) Level(ctx context.Context, subjectID string) (model.Level, error) {
	var level model.Level
	err := g.query(ctx, subjectID, orchestrator.QueryLevel, nil, &level)
	return level, err
}

// CompletedMethods answers Query.CompletedMethods.
func (g *Gateway) CompletedMethods(ctx context.Context, subjectID string) (map[model.VerificationMethod]int, error) {
	var counts map[model.VerificationMethod]int
	err := g.query(ctx, subjectID, orchestrator.QueryCompletedMethods, nil, &counts)
	return counts, err
}

// NextLevel answers Query.NextLevel.
func (g *Gateway) NextLevel(ctx context.Context, subjectID string) (scoring.NextLevelResult, error) {
	var res scoring.NextLevelResult
	err := g.query(ctx, subjectID, orchestrator.QueryNextLevel, nil, &res)
	return res, err
}

// MethodStatus answers Query.Method(method).
func (g *Gateway) MethodStatus(ctx context.Context, subjectID string, method model.VerificationMethod) (orchestrator.MethodStatusResult, error) {
	var res orchestrator.MethodStatusResult
	err := g.query(ctx, subjectID, orchestrator.QueryMethodStatus, []interface{}{method}, &res)
	return res, err
}

// Status is a dashboard-shaped aggregate of Score, Level,
// CompletedMethods, and NextLevel, fetched as four independent
// QueryWorkflow round trips run concurrently. Each query hits the same
// workflow execution but is answered from an independent query handler,
// so there is no shared mutable state to race on; the errgroup only
// needs to propagate the first error and cancel the rest.
type Status struct {
	Score            int
	Level            model.Level
	CompletedMethods map[model.VerificationMethod]int
	NextLevel        scoring.NextLevelResult
}

func (g *Gateway) Status(ctx context.Context, subjectID string) (Status, error) {
	var st Status
	grp, gctx := errgroup.WithContext(ctx)
	grp.Go(func() (err error) { st.Score, err = g.Score(gctx, subjectID); return })
	grp.Go(func() (err error) { st.Level, err = g.Level(gctx, subjectID); return })
	grp.Go(func() (err error) { st.CompletedMethods, err = g.CompletedMethods(gctx, subjectID); return })
	grp.Go(func() (err error) { st.NextLevel, err = g.NextLevel(gctx, subjectID); return })
	if err := grp.Wait(); err != nil {
		return Status{}, err
	}
	return st, nil
}
