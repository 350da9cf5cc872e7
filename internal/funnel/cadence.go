package funnel

import (
	"context"
	"time"

	"github.com/sells-group/outreach-cli/internal/model"
)

// maxFollowups caps the follow-ups per intent after the initial touch.
const maxFollowups = 2

// followupDelay returns the required gap between the first touch of an
// intent and follow-up number step.
func followupDelay(intent model.Intent, step int) time.Duration {
	day := 24 * time.Hour
	if intent == model.IntentConsentRequest {
		if step <= 1 {
			return 2 * day
		}
		return 4 * day
	}
	if step <= 1 {
		return 1 * day
	}
	return 3 * day
}

// followupStep decides whether the next follow-up for an intent is due
// for a lead, and which step it is. A lead with no touch of the intent
// has nothing to follow up on.
func (r *Runner) followupStep(ctx context.Context, leadID int64, intent model.Intent) (int, bool, error) {
	count, err := r.store.CountTouches(ctx, leadID, intent)
	if err != nil {
		return 0, false, err
	}
	if count == 0 || count > maxFollowups {
		return 0, false, nil
	}
	step := count

	first, err := r.store.FirstTouchAt(ctx, leadID, intent)
	if err != nil {
		return 0, false, err
	}
	if first.IsZero() {
		return 0, false, nil
	}
	if r.nowFunc().Sub(first) < followupDelay(intent, step) {
		return 0, false, nil
	}
	return step, true, nil
}
