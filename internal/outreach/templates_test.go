package outreach

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/sells-group/outreach-cli/internal/model"
)

func TestConsentInitial_EmailCarriesUnsubscribe(t *testing.T) {
	m := ConsentInitial(model.ChannelEmail, "Clinica Sorriso", "https://x.example/optout?u=h")
	assert.Equal(t, "consent_initial_v1", m.TemplateID)
	assert.Equal(t, model.IntentConsentRequest, m.Intent)
	assert.NotEmpty(t, m.Subject)
	assert.Contains(t, m.Body, "Clinica Sorriso")
	assert.Contains(t, m.Body, "https://x.example/optout?u=h")
}

func TestConsentInitial_WhatsAppHasNoSubject(t *testing.T) {
	m := ConsentInitial(model.ChannelWhatsApp, "Clinica Sorriso", "")
	assert.Empty(t, m.Subject)
	assert.Contains(t, m.Body, "SAIR")
}

func TestConsentFollowup_Steps(t *testing.T) {
	m1 := ConsentFollowup(model.ChannelEmail, 1, "Acme", "u")
	m2 := ConsentFollowup(model.ChannelEmail, 2, "Acme", "u")
	assert.Equal(t, "consent_followup_1_v1", m1.TemplateID)
	assert.Equal(t, "consent_followup_2_v1", m2.TemplateID)
	assert.NotEqual(t, m1.Body, m2.Body)
}

func TestOffer_CarriesPricesAndLinks(t *testing.T) {
	m := Offer(model.ChannelWhatsApp, "Acme", "https://demo.example/acme", "https://pay.example/acme", 300, 200)
	assert.Equal(t, model.IntentOffer, m.Intent)
	assert.Contains(t, m.Body, "R$ 300")
	assert.Contains(t, m.Body, "R$ 200")
	assert.Contains(t, m.Body, "https://demo.example/acme")
	assert.Contains(t, m.Body, "https://pay.example/acme")
}

func TestOfferFollowup_Steps(t *testing.T) {
	m1 := OfferFollowup(model.ChannelEmail, 1, "Acme", "p", "pay")
	m2 := OfferFollowup(model.ChannelEmail, 2, "Acme", "p", "pay")
	assert.Equal(t, "offer_followup_1_v1", m1.TemplateID)
	assert.Equal(t, "offer_followup_2_v1", m2.TemplateID)
	assert.Contains(t, m2.Body, "pay")
}
