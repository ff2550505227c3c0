// Package escalation runs the background processor that cancels work items
// stuck at one step past their template's escalation timeout. It is an
// ordinary caller of the transition engine: escalations go through the same
// Apply path as user actions, recorded with the actor "system".
package escalation

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/skyhangar/flightline/internal/engine"
	"github.com/skyhangar/flightline/internal/observability"
	"github.com/skyhangar/flightline/internal/template"
	"github.com/skyhangar/flightline/model"
)

// SystemActor is recorded on transitions applied by the processor.
const SystemActor = "system"

// Processor periodically sweeps active work items and cancels the ones
// whose last transition is older than their template's escalation timeout.
type Processor struct {
	engine    *engine.Engine
	store     engine.StateStore
	templates *template.Registry
	interval  time.Duration
	logger    *zap.Logger
	metrics   *observability.Metrics

	now func() time.Time
}

// NewProcessor creates an escalation processor. The metrics argument may be
// nil.
func NewProcessor(eng *engine.Engine, store engine.StateStore, templates *template.Registry, interval time.Duration, logger *zap.Logger, metrics *observability.Metrics) *Processor {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Processor{
		engine:    eng,
		store:     store,
		templates: templates,
		interval:  interval,
		logger:    logger,
		metrics:   metrics,
		now:       time.Now,
	}
}

// Run sweeps on the configured interval until the context is cancelled.
func (p *Processor) Run(ctx context.Context) {
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	p.logger.Info("escalation processor started",
		zap.Duration("check_interval", p.interval),
	)

	for {
		select {
		case <-ctx.Done():
			p.logger.Info("escalation processor stopped")
			return
		case <-ticker.C:
			if _, err := p.ProcessOnce(ctx); err != nil {
				p.logger.Error("escalation sweep failed", zap.Error(err))
			}
		}
	}
}

// ProcessOnce runs a single sweep and returns the number of items escalated.
// Per-item failures are logged and do not stop the sweep.
func (p *Processor) ProcessOnce(ctx context.Context) (n int, err error) {
	ctx, span := observability.StartSpan(ctx, "escalation.sweep")
	defer func() { observability.EndSpanWithError(span, err) }()

	start := p.now()
	defer func() {
		if p.metrics != nil {
			p.metrics.RecordEscalationSweep(time.Since(start))
		}
	}()

	items, err := p.store.List(ctx, model.WorkItemFilters{Status: model.StatusActive})
	if err != nil {
		return 0, err
	}

	escalated := 0
	for _, item := range items {
		tmpl, ok := p.templates.Get(item.TemplateID)
		if !ok {
			p.logger.Warn("escalation: item references unknown template",
				zap.String("item_id", item.ID),
				zap.String("template_id", item.TemplateID),
			)
			continue
		}

		timeout, enabled := tmpl.EscalationAfter()
		if !enabled {
			continue
		}
		if p.now().Sub(lastActivity(item)) < timeout {
			continue
		}

		if err := p.escalate(ctx, item, timeout); err != nil {
			// Terminal or concurrently modified items are not failures:
			// someone acted on the item between List and Apply.
			if model.IsCode(err, model.ErrTerminalState) || model.IsCode(err, model.ErrConcurrentModification) {
				continue
			}
			p.logger.Error("escalation failed",
				zap.String("item_id", item.ID),
				zap.String("template_id", item.TemplateID),
				zap.Error(err),
			)
			if p.metrics != nil {
				p.metrics.RecordEscalation(item.TemplateID, "error")
			}
			continue
		}
		escalated++
	}

	return escalated, nil
}

func (p *Processor) escalate(ctx context.Context, item model.WorkItem, timeout time.Duration) error {
	_, _, err := p.engine.Apply(ctx, item.ID, engine.Action{
		Kind:    model.RequestCancel,
		Comment: "escalated: no activity within " + timeout.String(),
		Actor:   SystemActor,
	})
	if err != nil {
		return err
	}

	p.logger.Info("item escalated",
		zap.String("item_id", item.ID),
		zap.String("template_id", item.TemplateID),
		zap.Int("step", item.State.CurrentStep),
		zap.Duration("timeout", timeout),
	)
	if p.metrics != nil {
		p.metrics.RecordEscalation(item.TemplateID, "cancelled")
	}
	return nil
}

// lastActivity is the timestamp of the item's most recent transition, or
// its creation time if nothing has happened yet.
func lastActivity(item model.WorkItem) time.Time {
	if n := len(item.State.History); n > 0 {
		return item.State.History[n-1].Timestamp
	}
	return item.CreatedAt
}
