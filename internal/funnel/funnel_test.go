package funnel

import (
	"context"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/outreach-cli/internal/health"
	"github.com/sells-group/outreach-cli/internal/incident"
	"github.com/sells-group/outreach-cli/internal/model"
	"github.com/sells-group/outreach-cli/internal/outreach"
	"github.com/sells-group/outreach-cli/internal/pricing"
	"github.com/sells-group/outreach-cli/internal/store"
)

type fakeScraper struct {
	candidates  []model.RawCandidate
	unstable    bool
	errorStreak int
	err         error
}

func (f *fakeScraper) Scrape(_ context.Context, _ string, _ int) (*ScrapeResult, error) {
	if f.err != nil {
		return nil, f.err
	}
	return &ScrapeResult{Candidates: f.candidates, Unstable: f.unstable, ErrorStreak: f.errorStreak}, nil
}

type sentMessage struct {
	leadID int64
	msg    outreach.Message
}

type fakeTransport struct {
	sent []sentMessage
	err  error
}

func (f *fakeTransport) Send(_ context.Context, lead model.Lead, msg outreach.Message) (string, error) {
	if f.err != nil {
		return "", f.err
	}
	f.sent = append(f.sent, sentMessage{leadID: lead.ID, msg: msg})
	return "msg-1", nil
}

type fakeDemo struct {
	url string
	err error
}

func (f *fakeDemo) Publish(_ context.Context, lead model.Lead) (string, error) {
	if f.err != nil {
		return "", f.err
	}
	return f.url + "/" + outreach.Slugify(lead.BusinessName), nil
}

type fakePayments struct {
	url string
	err error
}

func (f *fakePayments) PaymentLink(_ context.Context, _ model.Lead, _, _ int) (string, error) {
	return f.url, f.err
}

type testEnv struct {
	runner   *Runner
	store    *store.SQLiteStore
	scraper  *fakeScraper
	email    *fakeTransport
	whatsapp *fakeTransport
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	st, err := store.NewSQLite(filepath.Join(t.TempDir(), "funnel.db"), pricing.DefaultPolicy())
	require.NoError(t, err)
	require.NoError(t, st.Migrate(context.Background()))
	t.Cleanup(func() { st.Close() }) //nolint:errcheck

	env := &testEnv{
		store:    st,
		scraper:  &fakeScraper{},
		email:    &fakeTransport{},
		whatsapp: &fakeTransport{},
	}
	cfg := DefaultConfig()
	cfg.Audience = "dentists"
	cfg.CountryCode = "BR"
	cfg.UnsubscribeBase = "https://outreach.example/unsub"
	cfg.IncidentDir = t.TempDir()
	env.runner = NewRunner(Deps{
		Store:     st,
		Health:    health.NewController(st, health.DefaultThresholds()),
		Incidents: incident.NewEngine(st, 0),
		Scraper:   env.scraper,
		Email:     env.email,
		WhatsApp:  env.whatsapp,
		Demo:      &fakeDemo{url: "https://preview.example"},
		Payments:  &fakePayments{url: "https://pay.example/abc"},
	}, cfg)
	return env
}

func (env *testEnv) insertLead(t *testing.T, c model.RawCandidate) int64 {
	t.Helper()
	id, err := env.store.UpsertLead(context.Background(), "run-1", c, "dentists", "BR")
	require.NoError(t, err)
	return id
}

func (env *testEnv) lead(t *testing.T, id int64) *model.Lead {
	t.Helper()
	l, err := env.store.GetLead(context.Background(), id)
	require.NoError(t, err)
	require.NotNil(t, l)
	return l
}

func TestIngest_StrictProfileFilter(t *testing.T) {
	env := newTestEnv(t)
	env.scraper.candidates = []model.RawCandidate{
		{Name: "Has Site", Website: "https://hassite.com", Email: "a@hassite.com", MapsURL: "https://maps/1"},
		{Name: "No Site", Phone: "+55 11 98888-0000", MapsURL: "https://maps/2"},
		{Name: "No Contact", MapsURL: "https://maps/3"},
	}

	res, err := env.runner.Ingest(context.Background(), "dentista campinas", 20)
	require.NoError(t, err)
	assert.Equal(t, 3, res.Scraped)
	assert.Equal(t, 2, res.Accepted, "only no-website candidates qualify")
	assert.False(t, res.Relaxed)
	assert.False(t, res.Unstable)

	n, err := env.store.CountLeads(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	// The contactless lead is stored but never listed for contact.
	listed, err := env.store.ListLeadsForInitialContact(context.Background(), 10)
	require.NoError(t, err)
	require.Len(t, listed, 1)
	assert.Equal(t, "No Site", listed[0].BusinessName)
	assert.Equal(t, model.StageQualified, listed[0].Stage, "ingested leads are qualified")

	first, err := env.store.FirstRunAt(context.Background())
	require.NoError(t, err)
	assert.False(t, first.IsZero(), "run is recorded")
}

func TestIngest_RelaxedFallback(t *testing.T) {
	env := newTestEnv(t)
	env.runner.cfg.AllowRelaxedICP = true
	env.scraper.candidates = []model.RawCandidate{
		{Name: "Has Site", Website: "https://hassite.com", Email: "a@hassite.com", MapsURL: "https://maps/1"},
	}

	res, err := env.runner.Ingest(context.Background(), "dentista campinas", 20)
	require.NoError(t, err)
	assert.True(t, res.Relaxed)
	assert.Equal(t, 1, res.Accepted)
}

func TestIngest_ScrapeFailureRecordsUnstableRun(t *testing.T) {
	env := newTestEnv(t)
	env.scraper.err = eris.New("blocked")

	res, err := env.runner.Ingest(context.Background(), "dentista campinas", 20)
	require.Error(t, err)
	assert.True(t, res.Unstable)

	streak, err := env.store.UnstableStreak(context.Background(), model.ChannelScrape)
	require.NoError(t, err)
	assert.Equal(t, 1, streak)
}

func TestIngest_UnstableSourceRecordsUnstableRun(t *testing.T) {
	env := newTestEnv(t)
	env.scraper.candidates = []model.RawCandidate{
		{Name: "No Site", Phone: "+55 11 98888-0000", MapsURL: "https://maps/1"},
	}
	env.scraper.unstable = true

	res, err := env.runner.Ingest(context.Background(), "dentista campinas", 20)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Accepted, "unstable runs still store what they found")
	assert.True(t, res.Unstable)

	streak, err := env.store.UnstableStreak(context.Background(), model.ChannelScrape)
	require.NoError(t, err)
	assert.Equal(t, 1, streak)
}

func TestIngest_ErrorStreakPausesScrape(t *testing.T) {
	env := newTestEnv(t)
	env.scraper.candidates = []model.RawCandidate{
		{Name: "No Site", Phone: "+55 11 98888-0000", MapsURL: "https://maps/1"},
	}
	env.scraper.errorStreak = 3

	res, err := env.runner.Ingest(context.Background(), "dentista campinas", 20)
	require.NoError(t, err)
	assert.Equal(t, health.ReasonErrorStreak, res.PauseReason)

	paused, err := env.store.ChannelStatus(context.Background(), model.ChannelScrape)
	require.NoError(t, err)
	require.NotNil(t, paused)
	assert.Equal(t, model.ChannelPaused, paused.State)
}

func TestSendInitialOutreach(t *testing.T) {
	env := newTestEnv(t)
	emailID := env.insertLead(t, model.RawCandidate{Name: "Sorriso", Email: "contato@sorriso.com", MapsURL: "https://maps/1"})
	waID := env.insertLead(t, model.RawCandidate{Name: "Padaria", Phone: "+55 11 98888-0000", MapsURL: "https://maps/2"})

	rep, err := env.runner.SendInitialOutreach(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, rep.Sent)
	assert.Zero(t, rep.Failed)

	require.Len(t, env.email.sent, 1)
	assert.Equal(t, "consent_initial_v1", env.email.sent[0].msg.TemplateID)
	assert.Contains(t, env.email.sent[0].msg.Body, "https://outreach.example/unsub")
	require.Len(t, env.whatsapp.sent, 1)
	assert.Contains(t, env.whatsapp.sent[0].msg.Body, "SAIR")

	assert.Equal(t, model.StageWaitingReply, env.lead(t, emailID).Stage)
	assert.Equal(t, model.StageWaitingReply, env.lead(t, waID).Stage)

	n, err := env.store.CountTouches(context.Background(), emailID, model.IntentConsentRequest)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestSendInitialOutreach_GuardBlocksRepeat(t *testing.T) {
	env := newTestEnv(t)
	id := env.insertLead(t, model.RawCandidate{Name: "Sorriso", Email: "contato@sorriso.com", MapsURL: "https://maps/1"})

	_, err := env.runner.SendInitialOutreach(context.Background())
	require.NoError(t, err)
	// Back to a contactable stage so the lead is listed again.
	require.NoError(t, env.store.UpdateStage(context.Background(), id, model.StageNew))

	rep, err := env.runner.SendInitialOutreach(context.Background())
	require.NoError(t, err)
	assert.Zero(t, rep.Sent)
	assert.Equal(t, 1, rep.Skipped)
	assert.Len(t, env.email.sent, 1, "the same contact never gets a second consent request")
}

func TestSendInitialOutreach_SafeModeBlocksBatch(t *testing.T) {
	env := newTestEnv(t)
	env.insertLead(t, model.RawCandidate{Name: "Sorriso", Email: "contato@sorriso.com", MapsURL: "https://maps/1"})
	require.NoError(t, env.store.SetGlobalSafeMode(context.Background(), true))

	rep, err := env.runner.SendInitialOutreach(context.Background())
	require.NoError(t, err)
	assert.Zero(t, rep.Examined)
	assert.Empty(t, env.email.sent)
}

func TestSendInitialOutreach_OptedOutContactSkipped(t *testing.T) {
	env := newTestEnv(t)
	env.insertLead(t, model.RawCandidate{Name: "Sorriso", Email: "contato@sorriso.com", MapsURL: "https://maps/1"})
	hash := outreach.ContactHash("contato@sorriso.com")
	require.NoError(t, env.store.RegisterOptOut(context.Background(), hash, model.ChannelEmail, "manual"))

	rep, err := env.runner.SendInitialOutreach(context.Background())
	require.NoError(t, err)
	assert.Zero(t, rep.Sent)
	assert.Equal(t, 1, rep.Skipped)
}

func TestSendInitialOutreach_TransportFailureRecorded(t *testing.T) {
	env := newTestEnv(t)
	id := env.insertLead(t, model.RawCandidate{Name: "Sorriso", Email: "contato@sorriso.com", MapsURL: "https://maps/1"})
	env.email.err = eris.New("smtp unavailable")

	rep, err := env.runner.SendInitialOutreach(context.Background())
	require.NoError(t, err, "one bad lead never aborts the batch")
	assert.Equal(t, 1, rep.Failed)
	assert.Equal(t, model.StageNew, env.lead(t, id).Stage, "stage unchanged on failure")

	day := time.Now().UTC().Format("2006-01-02")
	m, err := env.store.ChannelMetrics(context.Background(), model.ChannelEmail, day)
	require.NoError(t, err)
	assert.Equal(t, 1, m.Sent, "a failed attempt still counts as sent")
	assert.Equal(t, 1, m.Failed)
}

func TestSendInitialOutreach_AllFailingChannelPauses(t *testing.T) {
	env := newTestEnv(t)
	for i := 0; i < 3; i++ {
		env.insertLead(t, model.RawCandidate{
			Name:    fmt.Sprintf("Loja %d", i),
			Phone:   fmt.Sprintf("+55 11 98888-000%d", i),
			MapsURL: fmt.Sprintf("https://maps/%d", i),
		})
	}
	env.whatsapp.err = eris.New("provider rejected")

	rep, err := env.runner.SendInitialOutreach(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 3, rep.Failed)

	day := time.Now().UTC().Format("2006-01-02")
	m, err := env.store.ChannelMetrics(context.Background(), model.ChannelWhatsApp, day)
	require.NoError(t, err)
	assert.Equal(t, 3, m.Sent)
	assert.Equal(t, 3, m.Failed)
	assert.InDelta(t, 1.0, m.FailRate(), 0.001)

	paused, err := env.runner.health.IsPaused(context.Background(), model.ChannelWhatsApp)
	require.NoError(t, err)
	assert.True(t, paused, "an all-failing channel trips the failure-rate pause")
}

func TestSendFollowups_ConsentCadence(t *testing.T) {
	env := newTestEnv(t)
	id := env.insertLead(t, model.RawCandidate{Name: "Sorriso", Email: "contato@sorriso.com", MapsURL: "https://maps/1"})
	require.NoError(t, env.store.UpdateStage(context.Background(), id, model.StageWaitingReply))
	require.NoError(t, env.store.SaveTouch(context.Background(), model.Touch{
		LeadID: id, Channel: model.ChannelEmail, Intent: model.IntentConsentRequest,
		TemplateID: "consent_initial_v1", Status: "sent",
		Timestamp: time.Now().UTC().Add(-3 * 24 * time.Hour),
	}))

	rep, err := env.runner.SendFollowups(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, rep.Sent)
	require.Len(t, env.email.sent, 1)
	assert.Equal(t, "consent_followup_1_v1", env.email.sent[0].msg.TemplateID)

	// Second follow-up is not due until four days after the first touch.
	rep, err = env.runner.SendFollowups(context.Background())
	require.NoError(t, err)
	assert.Zero(t, rep.Sent)

	env.runner.nowFunc = func() time.Time { return time.Now().UTC().Add(2 * 24 * time.Hour) }
	rep, err = env.runner.SendFollowups(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, rep.Sent)
	require.Len(t, env.email.sent, 2)
	assert.Equal(t, "consent_followup_2_v1", env.email.sent[1].msg.TemplateID)

	// Sequence is exhausted after two follow-ups.
	rep, err = env.runner.SendFollowups(context.Background())
	require.NoError(t, err)
	assert.Zero(t, rep.Sent)
}

func TestSendOffers(t *testing.T) {
	env := newTestEnv(t)
	id := env.insertLead(t, model.RawCandidate{Name: "Clinica Sorriso", Email: "contato@sorriso.com", MapsURL: "https://maps/1"})
	require.NoError(t, env.store.SetConsent(context.Background(), id, true))

	rep, err := env.runner.SendOffers(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, rep.Sent)

	lead := env.lead(t, id)
	assert.Equal(t, model.StagePaymentSent, lead.Stage)
	assert.Equal(t, "https://preview.example/clinica-sorriso", lead.PreviewURL)
	assert.Equal(t, "https://pay.example/abc", lead.PaymentURL)

	require.Len(t, env.email.sent, 1)
	assert.Equal(t, "offer_v1", env.email.sent[0].msg.TemplateID)
	assert.Contains(t, env.email.sent[0].msg.Body, "R$ 200")
	assert.Contains(t, env.email.sent[0].msg.Body, "R$ 100")

	state, err := env.store.PricingState(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, state.OffersInWindow)
}

func TestSendOffers_DemoFailureSkipsLead(t *testing.T) {
	env := newTestEnv(t)
	id := env.insertLead(t, model.RawCandidate{Name: "Sorriso", Email: "contato@sorriso.com", MapsURL: "https://maps/1"})
	require.NoError(t, env.store.SetConsent(context.Background(), id, true))
	env.runner.demo = &fakeDemo{err: eris.New("deploy failed")}

	rep, err := env.runner.SendOffers(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, rep.Failed)
	assert.Equal(t, model.StageConsented, env.lead(t, id).Stage)

	state, err := env.store.PricingState(context.Background())
	require.NoError(t, err)
	assert.Zero(t, state.OffersInWindow, "no offer counted before a demo exists")
}

func TestProcessReply_OptOut(t *testing.T) {
	env := newTestEnv(t)
	id := env.insertLead(t, model.RawCandidate{Name: "Sorriso", Email: "contato@sorriso.com", MapsURL: "https://maps/1"})

	res, err := env.runner.ProcessReply(context.Background(), id, model.ChannelEmail, "quero parar de receber isso")
	require.NoError(t, err)
	assert.Equal(t, outreach.ClassOptOut, res.Classification)
	assert.Equal(t, model.StageUnsubscribed, res.Stage)
	assert.Zero(t, res.QueueID, "opt-outs never enter the review queue")

	opted, err := env.store.IsOptedOut(context.Background(), outreach.ContactHash("contato@sorriso.com"), model.ChannelEmail)
	require.NoError(t, err)
	assert.True(t, opted)
	assert.Equal(t, model.StageUnsubscribed, env.lead(t, id).Stage)
}

func TestProcessReply_OptOutAfterWonKeepsStage(t *testing.T) {
	env := newTestEnv(t)
	id := env.insertLead(t, model.RawCandidate{Name: "Sorriso", Email: "contato@sorriso.com", MapsURL: "https://maps/1"})
	require.NoError(t, env.store.UpdateStage(context.Background(), id, model.StageWon))

	res, err := env.runner.ProcessReply(context.Background(), id, model.ChannelEmail, "quero parar de receber isso")
	require.NoError(t, err)
	assert.Equal(t, model.StageWon, res.Stage, "terminal stage is preserved")
	assert.Equal(t, model.StageWon, env.lead(t, id).Stage)

	opted, err := env.store.IsOptedOut(context.Background(), outreach.ContactHash("contato@sorriso.com"), model.ChannelEmail)
	require.NoError(t, err)
	assert.True(t, opted, "contact suppression is still recorded")
}

func TestProcessReply_PositiveConsents(t *testing.T) {
	env := newTestEnv(t)
	id := env.insertLead(t, model.RawCandidate{Name: "Sorriso", Email: "contato@sorriso.com", MapsURL: "https://maps/1"})
	require.NoError(t, env.store.UpdateStage(context.Background(), id, model.StageWaitingReply))

	res, err := env.runner.ProcessReply(context.Background(), id, model.ChannelEmail, "Sim, pode enviar o link!")
	require.NoError(t, err)
	assert.Equal(t, outreach.ClassPositive, res.Classification)
	assert.Equal(t, model.StageConsented, res.Stage)
	assert.NotZero(t, res.QueueID)
	assert.Equal(t, model.StageConsented, env.lead(t, id).Stage)
}

func TestProcessReply_PositiveAfterOfferMarksSale(t *testing.T) {
	env := newTestEnv(t)
	id := env.insertLead(t, model.RawCandidate{Name: "Sorriso", Email: "contato@sorriso.com", MapsURL: "https://maps/1"})
	require.NoError(t, env.store.SetConsent(context.Background(), id, true))

	_, err := env.runner.SendOffers(context.Background())
	require.NoError(t, err)

	res, err := env.runner.ProcessReply(context.Background(), id, model.ChannelEmail, "Fechado, quero o plano simples")
	require.NoError(t, err)
	require.NotNil(t, res.Sale)
	assert.Equal(t, model.StageWon, res.Stage)
	assert.Equal(t, model.PlanSimple, res.Sale.Plan)
	assert.Equal(t, 100.0, res.Sale.Amount, "settled at the quoted SIMPLES price")

	lead := env.lead(t, id)
	assert.Equal(t, model.StageWon, lead.Stage)
	assert.Equal(t, 100.0, lead.SaleAmount)
}

func TestProcessReply_ObjectionStaysWaiting(t *testing.T) {
	env := newTestEnv(t)
	id := env.insertLead(t, model.RawCandidate{Name: "Sorriso", Email: "contato@sorriso.com", MapsURL: "https://maps/1"})
	require.NoError(t, env.store.UpdateStage(context.Background(), id, model.StageWaitingReply))

	res, err := env.runner.ProcessReply(context.Background(), id, model.ChannelEmail, "achei caro demais")
	require.NoError(t, err)
	assert.Equal(t, outreach.ClassObjectionPrice, res.Classification)
	assert.Equal(t, model.StageWaitingReply, res.Stage)
	assert.NotZero(t, res.QueueID)
}

func TestProcessReply_UnknownLead(t *testing.T) {
	env := newTestEnv(t)
	_, err := env.runner.ProcessReply(context.Background(), 999, model.ChannelEmail, "oi")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not found")
}

func TestCloseStale(t *testing.T) {
	env := newTestEnv(t)
	id := env.insertLead(t, model.RawCandidate{Name: "Sorriso", Email: "contato@sorriso.com", MapsURL: "https://maps/1"})
	require.NoError(t, env.store.UpdateStage(context.Background(), id, model.StageWaitingReply))
	require.NoError(t, env.store.SaveTouch(context.Background(), model.Touch{
		LeadID: id, Channel: model.ChannelEmail, Intent: model.IntentConsentRequest,
		TemplateID: "consent_initial_v1", Status: "sent",
		Timestamp: time.Now().UTC().Add(-8 * 24 * time.Hour),
	}))

	ids, err := env.runner.CloseStale(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []int64{id}, ids)
	assert.Equal(t, model.StageLost, env.lead(t, id).Stage)
}

func TestDecideQueuedAndSendQueued(t *testing.T) {
	env := newTestEnv(t)
	id := env.insertLead(t, model.RawCandidate{Name: "Sorriso", Email: "contato@sorriso.com", MapsURL: "https://maps/1"})
	require.NoError(t, env.store.UpdateStage(context.Background(), id, model.StageWaitingReply))

	res, err := env.runner.ProcessReply(context.Background(), id, model.ChannelEmail, "achei caro demais")
	require.NoError(t, err)

	decided, err := env.runner.DecideQueued(context.Background(), 10)
	require.NoError(t, err)
	assert.Equal(t, 1, decided)

	item, err := env.store.GetReplyReview(context.Background(), res.QueueID)
	require.NoError(t, err)
	require.NotNil(t, item)
	assert.Equal(t, model.ReviewDrafted, item.Status)
	assert.Equal(t, outreach.ClassObjectionPrice, item.IntentFinal)
	assert.Contains(t, item.DraftReply, "SIMPLES")

	require.NoError(t, env.runner.SendQueued(context.Background(), res.QueueID))
	require.Len(t, env.email.sent, 1)
	assert.Equal(t, "queue_reply_v1", env.email.sent[0].msg.TemplateID)

	item, err = env.store.GetReplyReview(context.Background(), res.QueueID)
	require.NoError(t, err)
	assert.Equal(t, model.ReviewSent, item.Status)
}

func TestSendQueued_RefusesUndrafted(t *testing.T) {
	env := newTestEnv(t)
	id := env.insertLead(t, model.RawCandidate{Name: "Sorriso", Email: "contato@sorriso.com", MapsURL: "https://maps/1"})

	queueID, err := env.store.EnqueueReplyReview(context.Background(), id, model.ChannelEmail, "???")
	require.NoError(t, err)

	err = env.runner.SendQueued(context.Background(), queueID)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not sendable")
	assert.Empty(t, env.email.sent)
}
