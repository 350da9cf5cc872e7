// Package outreach holds the message-side helpers of the funnel:
// templates, reply classification, contact canonicalization, and the
// reply advisor that drafts responses for the review queue.
package outreach

import (
	"strings"

	"github.com/sells-group/outreach-cli/internal/model"
)

// Reply classifications. These are stored verbatim on reply rows and
// drive the lifecycle transitions in the funnel runner.
const (
	ClassPositive       = "positive"
	ClassOptOut         = "opt_out"
	ClassObjectionPrice = "objection_price"
	ClassObjectionTrust = "objection_trust"
	ClassNotNow         = "not_now"
	ClassNeutral        = "neutral"
)

// optOutPhrases are matched as standalone words. Any hit suppresses
// the contact permanently.
var optOutPhrases = []string{"parar", "sair", "stop", "unsubscribe", "cancelar", "remove"}

var classKeywords = []struct {
	class      string
	confidence float64
	words      []string
}{
	{ClassObjectionPrice, 0.8, []string{"caro", "preço", "preco", "valor", "desconto", "barato", "expensive"}},
	{ClassObjectionTrust, 0.75, []string{"golpe", "scam", "confiança", "confianca", "suspeito", "não confio", "nao confio"}},
	{ClassNotNow, 0.8, []string{"depois", "mais tarde", "agora não", "agora nao", "ocupado", "not now", "later"}},
	{ClassPositive, 0.85, []string{"sim", "quero", "interesse", "interessado", "interessada", "pode", "claro", "manda", "gostei", "yes"}},
}

// IsOptOutReply reports whether the text contains an opt-out phrase.
func IsOptOutReply(text string) bool {
	words := strings.Fields(normalize(text))
	for _, w := range words {
		for _, phrase := range optOutPhrases {
			if w == phrase {
				return true
			}
		}
	}
	return false
}

// ClassifyReply maps an inbound message onto a classification and a
// confidence. Opt-out wins over everything; an unrecognized message is
// neutral at low confidence so it lands in manual review.
func ClassifyReply(text string) (string, float64) {
	if IsOptOutReply(text) {
		return ClassOptOut, 0.99
	}
	normalized := normalize(text)
	for _, ck := range classKeywords {
		for _, w := range ck.words {
			if containsWord(normalized, w) {
				return ck.class, ck.confidence
			}
		}
	}
	return ClassNeutral, 0.5
}

// DetectPlanChoice picks the plan a reply refers to, defaulting to the
// complete plan when the message names neither.
func DetectPlanChoice(text string) model.Plan {
	normalized := normalize(text)
	if containsWord(normalized, "simples") {
		return model.PlanSimple
	}
	return model.PlanComplete
}

func normalize(text string) string {
	return strings.ToLower(strings.TrimSpace(text))
}

// containsWord matches a keyword at word boundaries. Multi-word
// keywords match as substrings.
func containsWord(normalized, keyword string) bool {
	if strings.Contains(keyword, " ") {
		return strings.Contains(normalized, keyword)
	}
	for _, w := range strings.FieldsFunc(normalized, func(r rune) bool {
		return r == ' ' || r == ',' || r == '.' || r == '!' || r == '?' || r == '\n'
	}) {
		if w == keyword {
			return true
		}
	}
	return false
}
