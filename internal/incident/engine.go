package incident

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/sells-group/outreach-cli/internal/model"
	"github.com/sells-group/outreach-cli/internal/store"
)

// DefaultWindow is how far back occurrences count toward escalation.
const DefaultWindow = 15 * time.Minute

// Incident is the escalation state of one error shape after a
// registration.
type Incident struct {
	Fingerprint string
	ErrorType   string
	Message     string
	Stack       string
	Context     map[string]string
	Count       int
	Level       Level
	At          time.Time
}

// Engine registers failures against the store and decides escalation.
type Engine struct {
	store   store.Store
	window  time.Duration
	nowFunc func() time.Time
}

// NewEngine creates an Engine with the given window; zero means
// DefaultWindow.
func NewEngine(st store.Store, window time.Duration) *Engine {
	if window <= 0 {
		window = DefaultWindow
	}
	return &Engine{
		store:   st,
		window:  window,
		nowFunc: func() time.Time { return time.Now().UTC() },
	}
}

// Register records one failure occurrence, prunes events that fell out
// of the window, and returns the resulting escalation state.
func (e *Engine) Register(ctx context.Context, errorType, message, stack string, errCtx map[string]string) (*Incident, error) {
	fp := Fingerprint(errorType, message, stack, errCtx)
	now := e.nowFunc()

	if err := e.store.InsertIncidentEvent(ctx, model.IncidentEvent{
		Fingerprint: fp,
		ErrorType:   errorType,
		Message:     message,
		Timestamp:   now,
	}); err != nil {
		return nil, err
	}

	since := now.Add(-e.window)
	if err := e.store.PruneIncidentEvents(ctx, since); err != nil {
		return nil, err
	}
	count, err := e.store.CountIncidentEvents(ctx, fp, since)
	if err != nil {
		return nil, err
	}

	inc := &Incident{
		Fingerprint: fp,
		ErrorType:   errorType,
		Message:     message,
		Stack:       stack,
		Context:     errCtx,
		Count:       count,
		Level:       LevelForCount(count),
		At:          now,
	}
	if inc.Level > LevelNone {
		zap.L().Warn("incident escalated",
			zap.String("fingerprint", fp),
			zap.String("error_type", errorType),
			zap.Int("count", count),
			zap.String("level", inc.Level.String()))
	}
	return inc, nil
}

// reportFrontMatter is the YAML header on a written incident report.
type reportFrontMatter struct {
	Fingerprint string    `yaml:"fingerprint"`
	ErrorType   string    `yaml:"error_type"`
	Level       string    `yaml:"level"`
	Count       int       `yaml:"count"`
	Window      string    `yaml:"window"`
	GeneratedAt time.Time `yaml:"generated_at"`
}

// WriteReport writes a markdown incident report into dir and returns
// its path. Every call writes a new file; repeated escalations of the
// same fingerprint are kept, not merged.
func (e *Engine) WriteReport(inc *Incident, dir string) (string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", eris.Wrap(err, "incident: create report dir")
	}

	front, err := yaml.Marshal(reportFrontMatter{
		Fingerprint: inc.Fingerprint,
		ErrorType:   inc.ErrorType,
		Level:       inc.Level.String(),
		Count:       inc.Count,
		Window:      e.window.String(),
		GeneratedAt: inc.At,
	})
	if err != nil {
		return "", eris.Wrap(err, "incident: marshal front matter")
	}

	var body []byte
	body = append(body, "---\n"...)
	body = append(body, front...)
	body = append(body, "---\n\n"...)
	body = append(body, fmt.Sprintf("# Incident %s (%s)\n\n", inc.Fingerprint, inc.Level)...)
	body = append(body, fmt.Sprintf("**Error:** %s\n\n%s\n\n", inc.ErrorType, inc.Message)...)
	if len(inc.Context) > 0 {
		body = append(body, "## Context\n\n"...)
		contextYAML, err := yaml.Marshal(inc.Context)
		if err != nil {
			return "", eris.Wrap(err, "incident: marshal context")
		}
		body = append(body, "```yaml\n"...)
		body = append(body, contextYAML...)
		body = append(body, "```\n\n"...)
	}
	if inc.Stack != "" {
		body = append(body, "## Stack\n\n```\n"...)
		body = append(body, inc.Stack...)
		body = append(body, "\n```\n\n"...)
	}
	body = append(body, fmt.Sprintf("## Impact\n\n%d occurrence(s) of this failure in the last %s; the affected pipeline stage is degraded until the source recovers.\n\n", inc.Count, e.window)...)
	body = append(body, fmt.Sprintf("## Hypothesis\n\nRepeated %s failures inside one window usually indicate an upstream outage or active blocking rather than a transient fault.\n\n", inc.ErrorType)...)
	body = append(body, "## Attempted\n\n- No automatic retry; occurrences accumulate until the window drains or the cause is fixed.\n\n"...)
	body = append(body, "## Next steps\n\n- Inspect recent runs for the channel named in context.\n- Resume the channel once the upstream cause is fixed.\n\n**Status:** open\n"...)

	name := fmt.Sprintf("incident-%s-%s.md", inc.Fingerprint, inc.At.Format("20060102T150405Z"))
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, body, 0o644); err != nil {
		return "", eris.Wrap(err, "incident: write report")
	}
	zap.L().Info("incident report written", zap.String("path", path))
	return path, nil
}
