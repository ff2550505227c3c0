package transport

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/skyhangar/flightline/internal/config"
	"github.com/skyhangar/flightline/internal/engine"
	"github.com/skyhangar/flightline/internal/idempotency"
	"github.com/skyhangar/flightline/internal/observability"
	"github.com/skyhangar/flightline/model"
)

// actionDeps bundles what the three action handlers share.
type actionDeps struct {
	engine  *engine.Engine
	idem    idempotency.Store
	idemCfg config.IdempotencyConfig
	metrics *observability.Metrics
}

// actionBody is the request payload for approve, reject, and cancel. An
// empty body is legal for approve and cancel.
type actionBody struct {
	TargetStep *int   `json:"target_step,omitempty"`
	Comment    string `json:"comment,omitempty"`
}

func handleItemAction(deps actionDeps, kind string) http.HandlerFunc {
	capability := "items:" + kind + ":execute"

	return func(w http.ResponseWriter, r *http.Request) {
		rctx := model.RequestContextFrom(r.Context())
		if rctx == nil {
			WriteError(w, model.NewUnauthorizedError("missing request context"))
			return
		}
		if !CapabilitiesFrom(r.Context()).Has(capability) {
			WriteForbidden(w, "missing capability "+capability)
			return
		}
		itemID := chi.URLParam(r, "itemId")

		var body actionBody
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil && !errors.Is(err, io.EOF) {
			WriteError(w, model.NewBadRequestError("invalid JSON body"))
			return
		}
		if kind == model.RequestReject && body.TargetStep == nil {
			WriteError(w, model.NewBadRequestError("reject requires a target_step"))
			return
		}

		action := engine.Action{
			Kind:    kind,
			Comment: body.Comment,
			Actor:   rctx.SubjectID,
		}
		if body.TargetStep != nil {
			action.TargetStep = *body.TargetStep
		}

		// Replay detection: the same key with the same input returns the
		// cached result without touching the engine; the same key with a
		// different input is a conflict.
		var idemKey, inputHash string
		if deps.idemCfg.Enabled && deps.idem != nil {
			if key := r.Header.Get("X-Idempotency-Key"); key != "" {
				idemKey = idempotency.FormatKey(itemID, kind, key)
				inputHash = idempotency.HashInput(action)

				cached, found, err := deps.idem.Check(r.Context(), idemKey, inputHash)
				if err != nil {
					WriteError(w, err)
					return
				}
				if found {
					if deps.metrics != nil {
						deps.metrics.RecordIdempotencyHit(kind)
					}
					WriteJSON(w, http.StatusOK, cached)
					return
				}
			}
		}

		start := time.Now()
		item, actions, err := deps.engine.Apply(r.Context(), itemID, action)
		if err != nil {
			recordActionFailure(r.Context(), deps.metrics, deps.engine, itemID, kind, err)
			WriteError(w, err)
			return
		}

		if deps.metrics != nil {
			deps.metrics.RecordTransition(item.TemplateID, kind, time.Since(start))
			if item.State.Status != model.StatusActive {
				deps.metrics.RecordItemCompletion(item.TemplateID, item.State.Status)
			}
		}

		result := model.ActionResult{Item: item, AvailableActions: actions}
		if idemKey != "" {
			ttl := deps.idemCfg.Store.DefaultTTL
			if ttl <= 0 {
				ttl = 24 * time.Hour
			}
			// Replay protection is best effort; the action already took
			// effect, so a store failure must not fail the request.
			_ = deps.idem.Store(r.Context(), idemKey, inputHash, result, ttl)
		}

		WriteJSON(w, http.StatusOK, result)
	}
}

// recordActionFailure labels rejection and conflict metrics with the item's
// template when it can still be loaded.
func recordActionFailure(ctx context.Context, metrics *observability.Metrics, eng *engine.Engine, itemID, kind string, actionErr error) {
	if metrics == nil {
		return
	}

	templateID := "unknown"
	if item, err := eng.GetItem(ctx, itemID); err == nil {
		templateID = item.TemplateID
	}

	if model.IsCode(actionErr, model.ErrConcurrentModification) {
		metrics.RecordTransitionConflict(templateID)
		return
	}
	if ee, ok := actionErr.(*model.ErrorEnvelope); ok {
		metrics.RecordTransitionRejection(templateID, kind, ee.Code)
	}
}
