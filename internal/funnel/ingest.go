package funnel

import (
	"context"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/outreach-cli/internal/model"
)

// IngestResult summarizes one acquisition run.
type IngestResult struct {
	RunID       string
	Scraped     int
	Accepted    int
	Relaxed     bool
	Unstable    bool
	PauseReason string
}

// Ingest scrapes candidates for a query, filters them to the target
// profile, enriches missing contacts, and upserts the survivors,
// promoting newly stored leads to QUALIFIED. The strict profile keeps
// only businesses without a website; when that yields nothing and
// relaxed mode is enabled, contactable candidates are kept anyway and
// the deviation is logged.
func (r *Runner) Ingest(ctx context.Context, query string, limit int) (*IngestResult, error) {
	res := &IngestResult{RunID: r.newRunID()}
	if r.scraper == nil {
		zap.L().Warn("funnel: client_not_configured", zap.String("client", "scraper"))
		return res, nil
	}

	sres, err := r.scraper.Scrape(ctx, query, limit)
	if err != nil {
		r.reportIncident(ctx, "ScrapeError", err.Error(), map[string]string{"query": query})
		if rerr := r.store.RecordRun(ctx, res.RunID, model.ChannelScrape, true, "scrape_failed"); rerr != nil {
			return res, rerr
		}
		res.Unstable = true
		r.evaluateScrapeHealth(ctx, res, 0)
		return res, eris.Wrap(err, "funnel: scrape")
	}
	candidates := sres.Candidates
	res.Scraped = len(candidates)

	kept := filterNoWebsite(candidates)
	if len(kept) == 0 && r.cfg.AllowRelaxedICP {
		kept = filterContactable(candidates)
		if len(kept) > 0 {
			res.Relaxed = true
			zap.L().Warn("funnel: relaxed profile filter in effect",
				zap.String("query", query),
				zap.Int("kept", len(kept)))
		}
	}

	if r.enricher != nil {
		kept = r.enricher.Enrich(ctx, kept)
	}

	for _, c := range kept {
		id, err := r.store.UpsertLead(ctx, res.RunID, c, r.cfg.Audience, r.cfg.CountryCode)
		if err != nil {
			zap.L().Error("funnel: lead upsert failed",
				zap.String("name", c.Name),
				zap.Error(err))
			continue
		}
		if err := r.store.QualifyLead(ctx, id); err != nil {
			zap.L().Error("funnel: lead qualify failed",
				zap.Int64("lead_id", id),
				zap.Error(err))
			continue
		}
		res.Accepted++
	}

	res.Unstable = sres.Unstable || res.Scraped == 0
	reason := ""
	switch {
	case res.Scraped == 0:
		reason = "zero_results"
	case sres.Unstable:
		reason = "source_unstable"
	}
	if err := r.store.RecordRun(ctx, res.RunID, model.ChannelScrape, res.Unstable, reason); err != nil {
		return res, err
	}
	r.evaluateScrapeHealth(ctx, res, sres.ErrorStreak)

	zap.L().Info("funnel: ingest complete",
		zap.String("run_id", res.RunID),
		zap.Int("scraped", res.Scraped),
		zap.Int("accepted", res.Accepted),
		zap.Bool("relaxed", res.Relaxed))
	return res, nil
}

func (r *Runner) evaluateScrapeHealth(ctx context.Context, res *IngestResult, errorStreak int) {
	if r.health == nil {
		return
	}
	reason, err := r.health.EvaluateScrape(ctx, errorStreak)
	if err != nil {
		zap.L().Error("funnel: scrape health check failed", zap.Error(err))
		return
	}
	res.PauseReason = reason
	if _, err := r.health.EvaluateSafeMode(ctx); err != nil {
		zap.L().Error("funnel: safe mode check failed", zap.Error(err))
	}
}

// filterNoWebsite keeps candidates matching the strict target profile:
// no website of their own. Leads without any contact are still stored;
// the initial-contact list skips them until a contact appears.
func filterNoWebsite(candidates []model.RawCandidate) []model.RawCandidate {
	var out []model.RawCandidate
	for _, c := range candidates {
		if c.Website == "" {
			out = append(out, c)
		}
	}
	return out
}

// filterContactable keeps candidates that have a contact already or a
// website that enrichment may harvest one from.
func filterContactable(candidates []model.RawCandidate) []model.RawCandidate {
	var out []model.RawCandidate
	for _, c := range candidates {
		if c.PreferredChannel() != model.ChannelNone || c.Website != "" {
			out = append(out, c)
		}
	}
	return out
}
