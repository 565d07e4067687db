// Package reconcile resolves settlement intents left open by a timeout or a crash.
package reconcile

import (
	"context"
	"errors"
	"fmt"
	"time"

	"greencoin-backend/internal/application/intents"
	"greencoin-backend/internal/domain"
	"greencoin-backend/internal/infrastructure/external"
	"greencoin-backend/internal/infrastructure/metrics"

	"github.com/rs/zerolog"
	"gorm.io/gorm"
)

// Resolver finishes or undoes the local side of one intent kind.
type Resolver interface {
	CompleteIntent(ctx context.Context, intent *domain.SettlementIntent, txID string) error
	AbortIntent(ctx context.Context, intent *domain.SettlementIntent, reason error) error
}

var errNotOnChain = errors.New("chain has no transaction for this intent")

type Reconciler struct {
	DB        *gorm.DB
	Chain     external.Chain
	Resolvers map[string]Resolver
	// After is how long an intent must be untouched before it is resolved.
	After time.Duration
	Batch int
	Log   zerolog.Logger
	Now   func() time.Time
}

type Report struct {
	Checked   int `json:"checked"`
	Completed int `json:"completed"`
	Aborted   int `json:"aborted"`
	Skipped   int `json:"skipped"`
	Errors    int `json:"errors"`
}

// Run asks the chain about every stale open intent and completes or aborts it.
func (r *Reconciler) Run(ctx context.Context) (*Report, error) {
	now := time.Now
	if r.Now != nil {
		now = r.Now
	}
	after := r.After
	if after <= 0 {
		after = time.Minute
	}
	stale, err := intents.Stale(ctx, r.DB, now().Add(-after), r.Batch)
	if err != nil {
		return nil, fmt.Errorf("list stale intents: %w", err)
	}
	report := &Report{}
	for i := range stale {
		intent := &stale[i]
		report.Checked++
		outcome := r.resolve(ctx, intent)
		metrics.RecordReconciled(intent.Kind, outcome)
		switch outcome {
		case "completed":
			report.Completed++
		case "aborted":
			report.Aborted++
		case "skipped":
			report.Skipped++
		default:
			report.Errors++
		}
	}
	if report.Checked > 0 {
		r.Log.Info().Int("checked", report.Checked).Int("completed", report.Completed).
			Int("aborted", report.Aborted).Int("errors", report.Errors).Msg("reconcile: pass finished")
	}
	return report, nil
}

func (r *Reconciler) resolve(ctx context.Context, intent *domain.SettlementIntent) string {
	log := r.Log.With().Str("intent_id", intent.IntentID.String()).Str("kind", intent.Kind).Logger()
	resolver, ok := r.Resolvers[intent.Kind]
	if !ok {
		log.Warn().Msg("reconcile: no resolver for kind")
		return "skipped"
	}
	txID, found, err := r.Chain.Lookup(ctx, intent.IntentID.String())
	if err != nil {
		log.Warn().Err(err).Msg("reconcile: chain lookup failed")
		return "error"
	}
	if found {
		err = resolver.CompleteIntent(ctx, intent, txID)
	} else {
		err = resolver.AbortIntent(ctx, intent, errNotOnChain)
	}
	switch {
	case errors.Is(err, intents.ErrClosed):
		return "skipped"
	case err != nil:
		log.Error().Err(err).Bool("found", found).Msg("reconcile: resolve failed")
		return "error"
	case found:
		log.Info().Str("tx_id", txID).Msg("reconcile: intent completed")
		return "completed"
	default:
		log.Warn().Msg("reconcile: intent aborted")
		return "aborted"
	}
}
