package outreach

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCanonicalPhone(t *testing.T) {
	got, err := CanonicalPhone("(11) 99999-0000", "BR")
	require.NoError(t, err)
	assert.Equal(t, "+5511999990000", got)

	// Already-prefixed numbers ignore the region.
	got, err = CanonicalPhone("+5511999990000", "US")
	require.NoError(t, err)
	assert.Equal(t, "+5511999990000", got)
}

func TestCanonicalPhone_Invalid(t *testing.T) {
	_, err := CanonicalPhone("123", "BR")
	require.Error(t, err)
}

func TestRegionFromPhone(t *testing.T) {
	assert.Equal(t, "BR", RegionFromPhone("+5511999990000"))
	assert.Empty(t, RegionFromPhone("not a phone"))
}

func TestContactHash_Normalizes(t *testing.T) {
	a := ContactHash("  Contato@Sorriso.COM ")
	b := ContactHash("contato@sorriso.com")
	assert.Equal(t, a, b)
	assert.Len(t, a, 64)
	assert.NotEqual(t, a, ContactHash("outro@sorriso.com"))
}

func TestBuildUnsubscribeURL(t *testing.T) {
	hash := "abc123"
	assert.Equal(t, "https://x.example/optout?u=abc123", BuildUnsubscribeURL("https://x.example/optout", hash))
	assert.Empty(t, BuildUnsubscribeURL("", hash))
}

func TestSlugify(t *testing.T) {
	assert.Equal(t, "clinica-sorriso", Slugify("Clínica Sorriso"))
	assert.Equal(t, "padaria-do-joao", Slugify("Padaria do João!"))
	assert.Equal(t, "acme-2000", Slugify("  Acme -- 2000  "))
	assert.Empty(t, Slugify("!!!"))
}
