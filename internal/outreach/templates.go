package outreach

import (
	"fmt"

	"github.com/sells-group/outreach-cli/internal/model"
)

// Message is a rendered outbound message. Subject is empty for
// WhatsApp.
type Message struct {
	TemplateID string
	Channel    model.Channel
	Intent     model.Intent
	Subject    string
	Body       string
}

// ConsentInitial renders the first contact asking permission to send a
// free demo page.
func ConsentInitial(channel model.Channel, businessName, unsubURL string) Message {
	m := Message{
		TemplateID: "consent_initial_v1",
		Channel:    channel,
		Intent:     model.IntentConsentRequest,
	}
	switch channel {
	case model.ChannelWhatsApp:
		m.Body = fmt.Sprintf(
			"Olá! Encontrei a %s no Google Maps e montei uma prévia gratuita de um site profissional para vocês. Posso enviar o link? Responda SAIR para não receber mais mensagens.",
			businessName)
	default:
		m.Subject = fmt.Sprintf("Uma prévia de site para %s", businessName)
		m.Body = fmt.Sprintf(
			"Olá!\n\nEncontrei a %s no Google Maps e notei que vocês ainda não têm um site. Preparei uma prévia gratuita, sem compromisso. Posso enviar o link?\n\nPara não receber mais mensagens: %s\n",
			businessName, unsubURL)
	}
	return m
}

// ConsentFollowup renders the nth consent follow-up (step 1 or 2).
func ConsentFollowup(channel model.Channel, step int, businessName, unsubURL string) Message {
	m := Message{
		TemplateID: fmt.Sprintf("consent_followup_%d_v1", step),
		Channel:    channel,
		Intent:     model.IntentConsentRequest,
	}
	var text string
	if step <= 1 {
		text = fmt.Sprintf("Oi! Passando para lembrar da prévia de site que preparei para a %s. Posso enviar o link?", businessName)
	} else {
		text = fmt.Sprintf("Última mensagem, prometo :) A prévia da %s continua disponível. Quer dar uma olhada?", businessName)
	}
	switch channel {
	case model.ChannelWhatsApp:
		m.Body = text + " Responda SAIR para não receber mais mensagens."
	default:
		m.Subject = fmt.Sprintf("Re: Uma prévia de site para %s", businessName)
		m.Body = fmt.Sprintf("%s\n\nPara não receber mais mensagens: %s\n", text, unsubURL)
	}
	return m
}

// Offer renders the demo-plus-payment offer with both plan prices.
func Offer(channel model.Channel, businessName, previewURL, paymentURL string, priceFull, priceSimple int) Message {
	m := Message{
		TemplateID: "offer_v1",
		Channel:    channel,
		Intent:     model.IntentOffer,
	}
	body := fmt.Sprintf(
		"A prévia do site da %s está pronta: %s\n\nPara publicar com domínio próprio:\n- Plano COMPLETO: R$ %d\n- Plano SIMPLES: R$ %d\n\nPagamento: %s",
		businessName, previewURL, priceFull, priceSimple, paymentURL)
	switch channel {
	case model.ChannelWhatsApp:
		m.Body = body
	default:
		m.Subject = fmt.Sprintf("Seu site está pronto, %s", businessName)
		m.Body = body + "\n"
	}
	return m
}

// OfferFollowup renders the nth offer follow-up (step 1 or 2).
func OfferFollowup(channel model.Channel, step int, businessName, previewURL, paymentURL string) Message {
	m := Message{
		TemplateID: fmt.Sprintf("offer_followup_%d_v1", step),
		Channel:    channel,
		Intent:     model.IntentOffer,
	}
	var text string
	if step <= 1 {
		text = fmt.Sprintf("O site da %s continua no ar: %s — qualquer dúvida sobre os planos é só responder. Pagamento: %s", businessName, previewURL, paymentURL)
	} else {
		text = fmt.Sprintf("Vou tirar a prévia da %s do ar em breve. Se quiser garantir o site: %s", businessName, paymentURL)
	}
	switch channel {
	case model.ChannelWhatsApp:
		m.Body = text
	default:
		m.Subject = fmt.Sprintf("Re: Seu site está pronto, %s", businessName)
		m.Body = text + "\n"
	}
	return m
}
