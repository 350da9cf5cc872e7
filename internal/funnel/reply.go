package funnel

import (
	"context"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/outreach-cli/internal/model"
	"github.com/sells-group/outreach-cli/internal/outreach"
	"github.com/sells-group/outreach-cli/internal/pricing"
)

// ReplyResult reports how an inbound message moved a lead.
type ReplyResult struct {
	Classification string
	Confidence     float64
	Stage          model.Stage
	QueueID        int64
	Sale           *pricing.SaleOutcome
}

// ProcessReply classifies an inbound message and advances the lead.
// Opt-outs suppress the contact permanently, positive replies either
// consent the lead or close a sale when an offer already went out, and
// everything else lands in the review queue for a drafted response.
func (r *Runner) ProcessReply(ctx context.Context, leadID int64, channel model.Channel, text string) (*ReplyResult, error) {
	lead, err := r.store.GetLead(ctx, leadID)
	if err != nil {
		return nil, err
	}
	if lead == nil {
		return nil, eris.Errorf("funnel: lead not found: %d", leadID)
	}

	class, confidence := outreach.ClassifyReply(text)
	res := &ReplyResult{Classification: class, Confidence: confidence, Stage: lead.Stage}

	if err := r.store.SaveReply(ctx, model.Reply{
		LeadID:         leadID,
		Channel:        channel,
		Body:           text,
		Classification: class,
		Confidence:     confidence,
		Timestamp:      r.nowFunc(),
	}); err != nil {
		return nil, err
	}

	switch class {
	case outreach.ClassOptOut:
		if err := r.suppressLead(ctx, lead, channel); err != nil {
			return nil, err
		}
		if !lead.Stage.Terminal() {
			res.Stage = model.StageUnsubscribed
		}
		return res, nil

	case outreach.ClassPositive:
		offered, err := r.store.HasOfferTouch(ctx, leadID)
		if err != nil {
			return nil, err
		}
		if offered {
			sale, err := r.MarkSale(ctx, leadID, outreach.DetectPlanChoice(text), nil)
			if err != nil {
				return nil, err
			}
			res.Sale = sale
			res.Stage = model.StageWon
			return res, nil
		}
		if err := r.store.SetConsent(ctx, leadID, true); err != nil {
			return nil, err
		}
		res.Stage = model.StageConsented

	default:
		if !lead.Stage.Terminal() {
			if err := r.store.UpdateStage(ctx, leadID, model.StageWaitingReply); err != nil {
				return nil, err
			}
			res.Stage = model.StageWaitingReply
		}
	}

	queueID, err := r.store.EnqueueReplyReview(ctx, leadID, channel, text)
	if err != nil {
		return nil, err
	}
	res.QueueID = queueID

	zap.L().Info("funnel: reply processed",
		zap.Int64("lead_id", leadID),
		zap.String("classification", class),
		zap.String("stage", string(res.Stage)))
	return res, nil
}

// suppressLead opts the contact out on the inbound channel and moves
// the lead to UNSUBSCRIBED. Suppression is keyed by contact hash and
// survives the lead itself; leads already at a terminal stage keep it,
// only the contact-level suppression is recorded.
func (r *Runner) suppressLead(ctx context.Context, lead *model.Lead, channel model.Channel) error {
	if tgt := r.resolveTarget(*lead, channel); tgt != nil {
		if err := r.store.RegisterOptOut(ctx, tgt.hash, channel, "reply_opt_out"); err != nil {
			return err
		}
	}
	if !lead.Stage.Terminal() {
		if err := r.store.SetLeadOptedOut(ctx, lead.ID); err != nil {
			return err
		}
	}
	zap.L().Info("funnel: lead opted out",
		zap.Int64("lead_id", lead.ID),
		zap.String("channel", string(channel)))
	return nil
}

// MarkSale settles a sale at the prices the lead was actually quoted
// and advances the adaptive price level.
func (r *Runner) MarkSale(ctx context.Context, leadID int64, plan model.Plan, amount *float64) (*pricing.SaleOutcome, error) {
	sale, err := r.store.MarkSale(ctx, leadID, r.newRunID(), "payment_confirmed", plan, amount)
	if err != nil {
		return nil, err
	}
	zap.L().Info("funnel: sale recorded",
		zap.Int64("lead_id", leadID),
		zap.String("plan", string(sale.Plan)),
		zap.Float64("amount", sale.Amount),
		zap.Int("price_level", sale.ToLevel))
	return sale, nil
}

// CloseStale moves leads whose sequences expired to LOST.
func (r *Runner) CloseStale(ctx context.Context) ([]int64, error) {
	cutoff := r.nowFunc().Add(-r.cfg.SweepAfter)
	ids, err := r.store.CloseExpiredSequences(ctx, cutoff)
	if err != nil {
		return nil, err
	}
	if len(ids) > 0 {
		zap.L().Info("funnel: stale leads closed", zap.Int("count", len(ids)))
	}
	return ids, nil
}
