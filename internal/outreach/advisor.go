package outreach

import (
	"context"
	"encoding/json"
	"strings"

	"go.uber.org/zap"

	"github.com/sells-group/outreach-cli/internal/model"
	"github.com/sells-group/outreach-cli/pkg/anthropic"
)

// draftConfidence is the floor for auto-drafting: decisions below it
// land in REVIEW_REQUIRED instead of CODEX_DONE.
const draftConfidence = 0.7

// Decision is an advisor's verdict on one inbound reply.
type Decision struct {
	Intent     string
	Draft      string
	Confidence float64
	Status     model.ReviewStatus
}

// ReplyAdvisor proposes an intent and a draft response for a queued
// inbound reply.
type ReplyAdvisor interface {
	Advise(ctx context.Context, lead *model.Lead, inbound string) (*Decision, error)
}

// NewAdvisor returns the Anthropic-backed advisor when an API key is
// configured, otherwise the deterministic keyword advisor.
func NewAdvisor(apiKey, modelID string) ReplyAdvisor {
	if apiKey == "" {
		return KeywordAdvisor{}
	}
	return &AnthropicAdvisor{
		client:   anthropic.NewClient(apiKey),
		model:    modelID,
		fallback: KeywordAdvisor{},
	}
}

// KeywordAdvisor drafts from the keyword classifier and canned
// responses. It never errors.
type KeywordAdvisor struct{}

func (KeywordAdvisor) Advise(_ context.Context, lead *model.Lead, inbound string) (*Decision, error) {
	class, confidence := ClassifyReply(inbound)
	d := &Decision{Intent: class, Confidence: confidence, Draft: cannedDraft(class, lead)}
	d.Status = statusFor(confidence)
	return d, nil
}

func cannedDraft(class string, lead *model.Lead) string {
	name := ""
	if lead != nil {
		name = lead.BusinessName
	}
	switch class {
	case ClassPositive:
		return "Que ótimo! Vou preparar tudo e te envio o link em seguida."
	case ClassObjectionPrice:
		return "Entendo! Temos também o plano SIMPLES, mais em conta. Quer que eu detalhe a diferença?"
	case ClassObjectionTrust:
		return "Sem problema, a prévia é gratuita e sem compromisso. Você só paga se quiser publicar o site da " + name + "."
	case ClassNotNow:
		return "Claro, sem pressa! A prévia fica disponível. Me avise quando for um bom momento."
	case ClassOptOut:
		return ""
	default:
		return "Obrigado pela resposta! Pode me contar um pouco mais sobre o que você procura?"
	}
}

func statusFor(confidence float64) model.ReviewStatus {
	if confidence >= draftConfidence {
		return model.ReviewDrafted
	}
	return model.ReviewRequired
}

// AnthropicAdvisor asks a model for an intent and draft, falling back
// to the keyword advisor when the call or the parse fails.
type AnthropicAdvisor struct {
	client   anthropic.Client
	model    string
	fallback KeywordAdvisor
}

const advisorSystem = `Você responde mensagens de pequenos negócios brasileiros sobre uma oferta de criação de site.
Classifique a mensagem recebida em uma de: positive, opt_out, objection_price, objection_trust, not_now, neutral.
Responda APENAS com JSON: {"intent": "...", "confidence": 0.0, "draft": "resposta curta em português"}`

type advisorPayload struct {
	Intent     string  `json:"intent"`
	Confidence float64 `json:"confidence"`
	Draft      string  `json:"draft"`
}

func (a *AnthropicAdvisor) Advise(ctx context.Context, lead *model.Lead, inbound string) (*Decision, error) {
	prompt := "Mensagem do lead"
	if lead != nil {
		prompt += " (" + lead.BusinessName + ", etapa " + string(lead.Stage) + ")"
	}
	prompt += ":\n\n" + inbound

	resp, err := a.client.CreateMessage(ctx, anthropic.MessageRequest{
		Model:     a.model,
		MaxTokens: 512,
		System:    []anthropic.SystemBlock{{Text: advisorSystem}},
		Messages:  []anthropic.Message{{Role: "user", Content: prompt}},
	})
	if err != nil {
		zap.L().Warn("reply advisor call failed, using keyword fallback", zap.Error(err))
		return a.fallback.Advise(ctx, lead, inbound)
	}
	resp.Usage.LogCost(a.model, "reply_advisor")

	var text string
	for _, block := range resp.Content {
		if block.Type == "text" {
			text += block.Text
		}
	}
	payload, ok := parseAdvisorPayload(text)
	if !ok {
		zap.L().Warn("reply advisor returned unparseable output, using keyword fallback")
		return a.fallback.Advise(ctx, lead, inbound)
	}

	return &Decision{
		Intent:     payload.Intent,
		Draft:      payload.Draft,
		Confidence: payload.Confidence,
		Status:     statusFor(payload.Confidence),
	}, nil
}

func parseAdvisorPayload(text string) (advisorPayload, bool) {
	var p advisorPayload
	start := strings.Index(text, "{")
	end := strings.LastIndex(text, "}")
	if start < 0 || end <= start {
		return p, false
	}
	if err := json.Unmarshal([]byte(text[start:end+1]), &p); err != nil {
		return p, false
	}
	switch p.Intent {
	case ClassPositive, ClassOptOut, ClassObjectionPrice, ClassObjectionTrust, ClassNotNow, ClassNeutral:
		return p, true
	}
	return p, false
}
