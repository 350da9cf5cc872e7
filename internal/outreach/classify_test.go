package outreach

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/sells-group/outreach-cli/internal/model"
)

func TestIsOptOutReply(t *testing.T) {
	assert.True(t, IsOptOutReply("PARAR"))
	assert.True(t, IsOptOutReply("quero sair dessa lista"))
	assert.True(t, IsOptOutReply("please remove me"))
	assert.False(t, IsOptOutReply("quero saber mais"))
	assert.False(t, IsOptOutReply(""))
}

func TestClassifyReply(t *testing.T) {
	tests := []struct {
		text       string
		class      string
		confidence float64
	}{
		{"PARAR", ClassOptOut, 0.99},
		{"achei muito caro", ClassObjectionPrice, 0.8},
		{"isso parece golpe", ClassObjectionTrust, 0.75},
		{"me chama mais tarde", ClassNotNow, 0.8},
		{"sim, pode mandar!", ClassPositive, 0.85},
		{"hmm", ClassNeutral, 0.5},
	}
	for _, tt := range tests {
		class, confidence := ClassifyReply(tt.text)
		assert.Equal(t, tt.class, class, "text: %q", tt.text)
		assert.Equal(t, tt.confidence, confidence, "text: %q", tt.text)
	}
}

func TestClassifyReply_OptOutWins(t *testing.T) {
	// A positive word next to an opt-out phrase still suppresses.
	class, confidence := ClassifyReply("sim mas quero parar de receber")
	assert.Equal(t, ClassOptOut, class)
	assert.Equal(t, 0.99, confidence)
}

func TestClassifyReply_WordBoundaries(t *testing.T) {
	// "simples" must not match the positive keyword "sim".
	class, _ := ClassifyReply("simples assim?")
	assert.NotEqual(t, ClassPositive, class)
}

func TestDetectPlanChoice(t *testing.T) {
	assert.Equal(t, model.PlanSimple, DetectPlanChoice("quero o plano simples"))
	assert.Equal(t, model.PlanComplete, DetectPlanChoice("quero o completo"))
	assert.Equal(t, model.PlanComplete, DetectPlanChoice("fechado!"))
}
