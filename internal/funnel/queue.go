package funnel

import (
	"context"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/outreach-cli/internal/model"
	"github.com/sells-group/outreach-cli/internal/outreach"
)

// DecideQueued runs the reply advisor over pending queue items, storing
// an intent and draft on each. High-confidence drafts land in
// CODEX_DONE; the rest need human review.
func (r *Runner) DecideQueued(ctx context.Context, limit int) (int, error) {
	items, err := r.store.ListReplyReview(ctx, []model.ReviewStatus{model.ReviewPending}, limit)
	if err != nil {
		return 0, err
	}

	decided := 0
	for _, item := range items {
		lead, err := r.store.GetLead(ctx, item.LeadID)
		if err != nil {
			zap.L().Error("funnel: queue lead load failed",
				zap.Int64("queue_id", item.ID),
				zap.Error(err))
			continue
		}
		decision, err := r.advisor.Advise(ctx, lead, item.InboundText)
		if err != nil {
			zap.L().Error("funnel: reply advisor failed",
				zap.Int64("queue_id", item.ID),
				zap.Error(err))
			continue
		}
		if err := r.store.SetReplyDecision(ctx, item.ID, decision.Intent, decision.Draft, decision.Confidence, decision.Status); err != nil {
			zap.L().Error("funnel: queue decision save failed",
				zap.Int64("queue_id", item.ID),
				zap.Error(err))
			continue
		}
		decided++
	}

	zap.L().Info("funnel: queue decided",
		zap.Int("pending", len(items)),
		zap.Int("decided", decided))
	return decided, nil
}

// SendQueued delivers the drafted reply for one queue item. Only items
// in CODEX_DONE may go out; anything else is refused.
func (r *Runner) SendQueued(ctx context.Context, queueID int64) error {
	item, err := r.store.GetReplyReview(ctx, queueID)
	if err != nil {
		return err
	}
	if item == nil {
		return eris.Errorf("funnel: reply_review not found: %d", queueID)
	}
	if item.Status != model.ReviewDrafted {
		return eris.Errorf("funnel: reply_review %d not sendable: status %s", queueID, item.Status)
	}

	lead, err := r.store.GetLead(ctx, item.LeadID)
	if err != nil {
		return err
	}
	if lead == nil {
		return eris.Errorf("funnel: lead not found: %d", item.LeadID)
	}

	tgt := r.resolveTarget(*lead, item.Channel)
	if tgt == nil {
		return eris.Errorf("funnel: lead %d has no contact on %s", lead.ID, item.Channel)
	}

	msg := outreach.Message{
		TemplateID: "queue_reply_v1",
		Channel:    item.Channel,
		Intent:     model.IntentReply,
		Body:       item.DraftReply,
	}
	if item.Channel == model.ChannelEmail {
		msg.Subject = "Re: " + lead.BusinessName
	}

	if outcome := r.deliver(ctx, *lead, tgt, msg, false); outcome != sendOK {
		return eris.Errorf("funnel: reply_review %d delivery failed", queueID)
	}
	return r.store.MarkReplySent(ctx, queueID)
}
