// Package enrich fills missing contact data on scraped candidates by
// fetching their websites and harvesting e-mail addresses.
package enrich

import (
	"context"
	"io"
	"net/http"
	"regexp"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/sells-group/outreach-cli/internal/model"
)

// Options configures the enricher.
type Options struct {
	Timeout     time.Duration
	Concurrency int
	RatePerSec  float64
	MaxBodySize int64
	UserAgent   string
}

// Enricher fetches candidate websites under a shared rate limit.
type Enricher struct {
	client      *http.Client
	limiter     *rate.Limiter
	concurrency int
	maxBodySize int64
	userAgent   string
}

// NewEnricher creates an Enricher with sane defaults for missing
// options.
func NewEnricher(opts Options) *Enricher {
	if opts.Timeout == 0 {
		opts.Timeout = 15 * time.Second
	}
	if opts.Concurrency == 0 {
		opts.Concurrency = 4
	}
	if opts.RatePerSec == 0 {
		opts.RatePerSec = 2
	}
	if opts.MaxBodySize == 0 {
		opts.MaxBodySize = 1 << 20
	}
	if opts.UserAgent == "" {
		opts.UserAgent = "outreach-cli/1.0"
	}
	return &Enricher{
		client:      &http.Client{Timeout: opts.Timeout},
		limiter:     rate.NewLimiter(rate.Limit(opts.RatePerSec), 1),
		concurrency: opts.Concurrency,
		maxBodySize: opts.MaxBodySize,
		userAgent:   opts.UserAgent,
	}
}

// Enrich fetches the website of every candidate that has one but lacks
// an e-mail, filling in the first address found. Fetch failures are
// logged and skipped; the batch always completes.
func (e *Enricher) Enrich(ctx context.Context, candidates []model.RawCandidate) []model.RawCandidate {
	out := make([]model.RawCandidate, len(candidates))
	copy(out, candidates)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.concurrency)
	for i := range out {
		if out[i].Website == "" || out[i].Email != "" {
			continue
		}
		g.Go(func() error {
			email, err := e.harvestEmail(gctx, out[i].Website)
			if err != nil {
				zap.L().Debug("enrich: website harvest failed",
					zap.String("website", out[i].Website),
					zap.Error(err))
				return nil
			}
			if email != "" {
				out[i].Email = email
			}
			return nil
		})
	}
	g.Wait() //nolint:errcheck
	return out
}

func (e *Enricher) harvestEmail(ctx context.Context, website string) (string, error) {
	if err := e.limiter.Wait(ctx); err != nil {
		return "", eris.Wrap(err, "enrich: rate wait")
	}
	if !strings.HasPrefix(website, "http://") && !strings.HasPrefix(website, "https://") {
		website = "https://" + website
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, website, nil)
	if err != nil {
		return "", eris.Wrapf(err, "enrich: build request %s", website)
	}
	req.Header.Set("User-Agent", e.userAgent)

	resp, err := e.client.Do(req)
	if err != nil {
		return "", eris.Wrapf(err, "enrich: fetch %s", website)
	}
	defer resp.Body.Close() //nolint:errcheck
	if resp.StatusCode != http.StatusOK {
		return "", eris.Errorf("enrich: fetch %s: status %d", website, resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, e.maxBodySize))
	if err != nil {
		return "", eris.Wrapf(err, "enrich: read %s", website)
	}

	emails := ExtractEmails(string(body))
	if len(emails) == 0 {
		return "", nil
	}
	return emails[0], nil
}

var (
	mailtoRE = regexp.MustCompile(`(?i)mailto:([a-z0-9._%+\-]+@[a-z0-9.\-]+\.[a-z]{2,})`)
	emailRE  = regexp.MustCompile(`(?i)\b[a-z0-9._%+\-]+@[a-z0-9.\-]+\.[a-z]{2,}\b`)
)

// junkSuffixes filter out asset filenames that look like addresses.
var junkSuffixes = []string{".png", ".jpg", ".jpeg", ".gif", ".svg", ".webp", ".css", ".js"}

// ExtractEmails pulls e-mail addresses out of HTML, mailto links
// first. Results are lowercased and deduplicated in document order.
func ExtractEmails(html string) []string {
	var out []string
	seen := make(map[string]bool)
	add := func(addr string) {
		addr = strings.ToLower(addr)
		for _, suffix := range junkSuffixes {
			if strings.HasSuffix(addr, suffix) {
				return
			}
		}
		if !seen[addr] {
			seen[addr] = true
			out = append(out, addr)
		}
	}

	for _, m := range mailtoRE.FindAllStringSubmatch(html, -1) {
		add(m[1])
	}
	for _, m := range emailRE.FindAllString(html, -1) {
		add(m)
	}
	return out
}
