package funnel

import (
	"context"

	"go.uber.org/zap"

	"github.com/sells-group/outreach-cli/internal/model"
	"github.com/sells-group/outreach-cli/internal/outreach"
	"github.com/sells-group/outreach-cli/internal/store"
)

// SendReport summarizes one outbound batch.
type SendReport struct {
	Examined int
	Sent     int
	Skipped  int
	Failed   int
}

type sendOutcome int

const (
	sendOK sendOutcome = iota
	sendSkipped
	sendFailed
)

func (rep *SendReport) record(o sendOutcome) {
	switch o {
	case sendOK:
		rep.Sent++
	case sendSkipped:
		rep.Skipped++
	case sendFailed:
		rep.Failed++
	}
}

// target is a resolved, canonical destination for one lead+channel.
type target struct {
	contact string
	hash    string
	unsub   string
}

// resolveTarget canonicalizes the lead's contact for the channel.
// Returns nil when the lead has no usable contact there.
func (r *Runner) resolveTarget(lead model.Lead, channel model.Channel) *target {
	contact, err := r.contactFor(lead, channel)
	if err != nil {
		zap.L().Debug("funnel: contact rejected",
			zap.Int64("lead_id", lead.ID),
			zap.String("channel", string(channel)),
			zap.Error(err))
		return nil
	}
	if contact == "" {
		return nil
	}
	hash := outreach.ContactHash(contact)
	return &target{
		contact: contact,
		hash:    hash,
		unsub:   outreach.BuildUnsubscribeURL(r.cfg.UnsubscribeBase, hash),
	}
}

// deliver sends one rendered message, records the touch and the day's
// counters, and marks the send guard on success. Suppression always
// applies; the guard check is skipped for follow-ups, whose repetition
// is governed by cadence instead.
func (r *Runner) deliver(ctx context.Context, lead model.Lead, tgt *target, msg outreach.Message, checkGuard bool) sendOutcome {
	transport := r.transportFor(msg.Channel)
	if transport == nil {
		zap.L().Warn("funnel: client_not_configured",
			zap.String("client", string(msg.Channel)),
			zap.Int64("lead_id", lead.ID))
		return sendSkipped
	}

	optedOut, err := r.store.IsOptedOut(ctx, tgt.hash, msg.Channel)
	if err != nil {
		zap.L().Error("funnel: suppression check failed", zap.Error(err))
		return sendSkipped
	}
	if optedOut {
		return sendSkipped
	}
	if checkGuard {
		seen, err := r.store.GuardSeen(ctx, tgt.hash, msg.Channel, msg.Intent)
		if err != nil {
			zap.L().Error("funnel: send guard check failed", zap.Error(err))
			return sendSkipped
		}
		if seen {
			return sendSkipped
		}
	}

	now := r.nowFunc()
	providerID, sendErr := transport.Send(ctx, lead, msg)
	touch := model.Touch{
		LeadID:            lead.ID,
		Channel:           msg.Channel,
		Intent:            msg.Intent,
		TemplateID:        msg.TemplateID,
		ProviderMessageID: providerID,
		Body:              msg.Body,
		Timestamp:         now,
	}
	if sendErr != nil {
		touch.Status = "failed"
		if err := r.store.SaveTouch(ctx, touch); err != nil {
			zap.L().Error("funnel: touch save failed", zap.Error(err))
		}
		// A failed attempt still counts as sent, so the failure rate
		// reflects attempts and failed sends consume the daily budget.
		if r.health != nil {
			if err := r.health.RecordSend(ctx, msg.Channel, store.MetricsDelta{Sent: 1, Failed: 1}); err != nil {
				zap.L().Error("funnel: metrics update failed", zap.Error(err))
			}
		}
		r.reportIncident(ctx, "SendError", sendErr.Error(), map[string]string{
			"channel":  string(msg.Channel),
			"template": msg.TemplateID,
		})
		return sendFailed
	}

	touch.Status = "sent"
	if err := r.store.SaveTouch(ctx, touch); err != nil {
		zap.L().Error("funnel: touch save failed", zap.Error(err))
	}
	if r.health != nil {
		if err := r.health.RecordSend(ctx, msg.Channel, store.MetricsDelta{Sent: 1}); err != nil {
			zap.L().Error("funnel: metrics update failed", zap.Error(err))
		}
	}
	if err := r.store.GuardMarkSent(ctx, tgt.hash, msg.Channel, msg.Intent, lead.ID); err != nil {
		zap.L().Error("funnel: send guard update failed", zap.Error(err))
	}
	return sendOK
}

// budgets tracks the remaining daily send allowance per channel.
type budgets map[model.Channel]int

func (r *Runner) dailyBudgets(ctx context.Context) (budgets, error) {
	b := budgets{}
	if r.health == nil {
		b[model.ChannelEmail] = r.cfg.BatchLimit
		b[model.ChannelWhatsApp] = r.cfg.BatchLimit
		return b, nil
	}
	emailLimit, err := r.health.EmailDailyLimit(ctx)
	if err != nil {
		return nil, err
	}
	emailSent, err := r.health.SentToday(ctx, model.ChannelEmail)
	if err != nil {
		return nil, err
	}
	waSent, err := r.health.SentToday(ctx, model.ChannelWhatsApp)
	if err != nil {
		return nil, err
	}
	b[model.ChannelEmail] = emailLimit - emailSent
	b[model.ChannelWhatsApp] = r.health.WhatsAppDailyLimit() - waSent
	return b, nil
}

// channelOpen reports whether a channel may send right now: not paused
// and with budget remaining.
func (r *Runner) channelOpen(ctx context.Context, channel model.Channel, b budgets) bool {
	if b[channel] <= 0 {
		return false
	}
	if r.health == nil {
		return true
	}
	paused, err := r.health.IsPaused(ctx, channel)
	if err != nil {
		zap.L().Error("funnel: pause check failed", zap.Error(err))
		return false
	}
	return !paused
}

// safeModeBlocked gates a whole batch on the global flag.
func (r *Runner) safeModeBlocked(ctx context.Context) bool {
	if r.health == nil {
		return false
	}
	active, err := r.health.SafeModeActive(ctx)
	if err != nil {
		zap.L().Error("funnel: safe mode read failed", zap.Error(err))
		return true
	}
	if active {
		zap.L().Warn("funnel: global safe mode active, outbound batch skipped")
	}
	return active
}

// evaluateDeliveryHealth re-checks channel thresholds and the safe-mode
// flag after a batch touched the counters.
func (r *Runner) evaluateDeliveryHealth(ctx context.Context) {
	if r.health == nil {
		return
	}
	if _, err := r.health.EvaluateEmail(ctx); err != nil {
		zap.L().Error("funnel: email health check failed", zap.Error(err))
	}
	if _, err := r.health.EvaluateWhatsApp(ctx); err != nil {
		zap.L().Error("funnel: whatsapp health check failed", zap.Error(err))
	}
	if _, err := r.health.EvaluateSafeMode(ctx); err != nil {
		zap.L().Error("funnel: safe mode check failed", zap.Error(err))
	}
}

// SendInitialOutreach sends the first consent request to contactable
// NEW and QUALIFIED leads, e-mail leads first. Each successful send
// moves the lead to WAITING_REPLY.
func (r *Runner) SendInitialOutreach(ctx context.Context) (*SendReport, error) {
	rep := &SendReport{}
	if r.safeModeBlocked(ctx) {
		return rep, nil
	}

	b, err := r.dailyBudgets(ctx)
	if err != nil {
		return rep, err
	}
	leads, err := r.store.ListLeadsForInitialContact(ctx, r.cfg.BatchLimit)
	if err != nil {
		return rep, err
	}

	for _, lead := range leads {
		rep.Examined++
		channel := lead.PreferredChannel
		if !r.channelOpen(ctx, channel, b) {
			rep.Skipped++
			continue
		}
		tgt := r.resolveTarget(lead, channel)
		if tgt == nil {
			rep.Skipped++
			continue
		}

		msg := outreach.ConsentInitial(channel, lead.BusinessName, tgt.unsub)
		outcome := r.deliver(ctx, lead, tgt, msg, true)
		rep.record(outcome)
		if outcome != sendOK {
			continue
		}
		b[channel]--
		if err := r.store.UpdateStage(ctx, lead.ID, model.StageWaitingReply); err != nil {
			zap.L().Error("funnel: stage update failed",
				zap.Int64("lead_id", lead.ID),
				zap.Error(err))
		}
	}

	r.evaluateDeliveryHealth(ctx)
	zap.L().Info("funnel: initial outreach complete",
		zap.Int("examined", rep.Examined),
		zap.Int("sent", rep.Sent),
		zap.Int("skipped", rep.Skipped),
		zap.Int("failed", rep.Failed))
	return rep, nil
}

// SendFollowups sends consent follow-ups to WAITING_REPLY leads and
// offer follow-ups to PAYMENT_SENT leads, both on the cadence schedule.
func (r *Runner) SendFollowups(ctx context.Context) (*SendReport, error) {
	rep := &SendReport{}
	if r.safeModeBlocked(ctx) {
		return rep, nil
	}
	b, err := r.dailyBudgets(ctx)
	if err != nil {
		return rep, err
	}

	waiting, err := r.store.ListLeadsByStage(ctx, model.StageWaitingReply, r.cfg.BatchLimit)
	if err != nil {
		return rep, err
	}
	for _, lead := range waiting {
		rep.Examined++
		r.followupOne(ctx, rep, b, lead, model.IntentConsentRequest)
	}

	offered, err := r.store.ListLeadsByStage(ctx, model.StagePaymentSent, r.cfg.BatchLimit)
	if err != nil {
		return rep, err
	}
	for _, lead := range offered {
		rep.Examined++
		r.followupOne(ctx, rep, b, lead, model.IntentOffer)
	}

	r.evaluateDeliveryHealth(ctx)
	zap.L().Info("funnel: followups complete",
		zap.Int("examined", rep.Examined),
		zap.Int("sent", rep.Sent),
		zap.Int("skipped", rep.Skipped),
		zap.Int("failed", rep.Failed))
	return rep, nil
}

func (r *Runner) followupOne(ctx context.Context, rep *SendReport, b budgets, lead model.Lead, intent model.Intent) {
	channel := lead.PreferredChannel
	if !r.channelOpen(ctx, channel, b) {
		rep.Skipped++
		return
	}

	step, due, err := r.followupStep(ctx, lead.ID, intent)
	if err != nil {
		zap.L().Error("funnel: cadence check failed",
			zap.Int64("lead_id", lead.ID),
			zap.Error(err))
		rep.Skipped++
		return
	}
	if !due {
		rep.Skipped++
		return
	}

	tgt := r.resolveTarget(lead, channel)
	if tgt == nil {
		rep.Skipped++
		return
	}

	var msg outreach.Message
	if intent == model.IntentConsentRequest {
		msg = outreach.ConsentFollowup(channel, step, lead.BusinessName, tgt.unsub)
	} else {
		msg = outreach.OfferFollowup(channel, step, lead.BusinessName, lead.PreviewURL, lead.PaymentURL)
	}

	outcome := r.deliver(ctx, lead, tgt, msg, false)
	rep.record(outcome)
	if outcome == sendOK {
		b[channel]--
	}
}

// SendOffers publishes a demo and sends the priced offer to every
// CONSENTED lead, moving it through DEMO_PUBLISHED to PAYMENT_SENT.
// Each offer is snapshotted into the pricing window at quote time.
func (r *Runner) SendOffers(ctx context.Context) (*SendReport, error) {
	rep := &SendReport{}
	if r.safeModeBlocked(ctx) {
		return rep, nil
	}
	if r.demo == nil || r.payments == nil {
		zap.L().Warn("funnel: client_not_configured", zap.String("client", "demo/payments"))
		return rep, nil
	}
	b, err := r.dailyBudgets(ctx)
	if err != nil {
		return rep, err
	}

	leads, err := r.store.ListLeadsByStage(ctx, model.StageConsented, r.cfg.BatchLimit)
	if err != nil {
		return rep, err
	}
	runID := r.newRunID()

	for _, lead := range leads {
		rep.Examined++
		channel := lead.PreferredChannel
		if !r.channelOpen(ctx, channel, b) {
			rep.Skipped++
			continue
		}
		tgt := r.resolveTarget(lead, channel)
		if tgt == nil {
			rep.Skipped++
			continue
		}
		optedOut, err := r.store.IsOptedOut(ctx, tgt.hash, channel)
		if err != nil || optedOut {
			rep.Skipped++
			continue
		}
		seen, err := r.store.GuardSeen(ctx, tgt.hash, channel, model.IntentOffer)
		if err != nil || seen {
			rep.Skipped++
			continue
		}

		previewURL, err := r.demo.Publish(ctx, lead)
		if err != nil {
			r.reportIncident(ctx, "DemoPublishError", err.Error(), map[string]string{
				"lead": lead.BusinessName,
			})
			rep.Failed++
			continue
		}

		outcome, err := r.store.RecordOffer(ctx, lead.ID, runID)
		if err != nil {
			zap.L().Error("funnel: offer record failed",
				zap.Int64("lead_id", lead.ID),
				zap.Error(err))
			rep.Failed++
			continue
		}
		snap := outcome.Snapshot

		paymentURL, err := r.payments.PaymentLink(ctx, lead, snap.PriceFull, snap.PriceSimple)
		if err != nil {
			r.reportIncident(ctx, "PaymentLinkError", err.Error(), map[string]string{
				"lead": lead.BusinessName,
			})
			rep.Failed++
			continue
		}
		if err := r.store.SetPreviewAndPayment(ctx, lead.ID, previewURL, paymentURL); err != nil {
			zap.L().Error("funnel: preview update failed",
				zap.Int64("lead_id", lead.ID),
				zap.Error(err))
			rep.Failed++
			continue
		}

		msg := outreach.Offer(channel, lead.BusinessName, previewURL, paymentURL, snap.PriceFull, snap.PriceSimple)
		res := r.deliver(ctx, lead, tgt, msg, false)
		rep.record(res)
		if res != sendOK {
			continue
		}
		b[channel]--
		if err := r.store.UpdateStage(ctx, lead.ID, model.StagePaymentSent); err != nil {
			zap.L().Error("funnel: stage update failed",
				zap.Int64("lead_id", lead.ID),
				zap.Error(err))
		}
	}

	r.evaluateDeliveryHealth(ctx)
	zap.L().Info("funnel: offers complete",
		zap.Int("examined", rep.Examined),
		zap.Int("sent", rep.Sent),
		zap.Int("skipped", rep.Skipped),
		zap.Int("failed", rep.Failed))
	return rep, nil
}
