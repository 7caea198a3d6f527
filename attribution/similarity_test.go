package attribution

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestTokens(t *testing.T) {
	assert.Equal(t, []string{"RETROPALA", "420", "D"}, Tokens("Retropala 420D"))
	assert.Equal(t, []string{"EXCAVADORA", "325", "BL"}, Tokens("EXCAVADORA 325BL"))
	assert.Equal(t, []string{"CAMIÓN", "10"}, Tokens("camión-10"))
	assert.Empty(t, Tokens("  - "))
}

func TestModelTokens(t *testing.T) {
	assert.Equal(t, []string{"420D"}, ModelTokens("RETROPALA 420D"))
	assert.Equal(t, []string{"325BL"}, ModelTokens("excavadora 325bl"))
	assert.Empty(t, ModelTokens("MINICARGADOR"))
	assert.Empty(t, ModelTokens("CAMION 5"))
}

func TestContainsWords(t *testing.T) {
	assert.True(t, containsWords("PAGO 420D, SITE X", []string{"420D"}))
	assert.False(t, containsWords("FACTURA 14207 DIESEL", []string{"420D"}))
	assert.False(t, containsWords("PAGO 1420D", []string{"420D"}))
	assert.False(t, containsWords("ANYTHING", nil))
}

func TestContainsAll(t *testing.T) {
	assert.True(t, containsAll("PAGO 420D SITE X", []string{"420", "D"}))
	assert.False(t, containsAll("PAGO 420D SITE X", []string{"RETROPALA"}))
	assert.False(t, containsAll("ANYTHING", nil))
}

func TestPartialRatio(t *testing.T) {
	tests := []struct {
		a, b string
		want float64
	}{
		{"ABC", "XXABCXX", 100},
		{"XXABCXX", "ABC", 100},
		{"ABCD", "ABXD", 75},
		{"", "X", 0},
		{"EXCAVADORA 325BL", "EXCAVADRA 32 BL", 86.67},
		{"RETROPALA 420D", "EXCAVADRA 32 BL", 35.71},
		{"RETROPALA 420D", "PAGO 420D SITE X", 50},
	}
	for _, tt := range tests {
		assert.InDelta(t, tt.want, PartialRatio(tt.a, tt.b), 0.01, "%q vs %q", tt.a, tt.b)
	}

	assert.LessOrEqual(t, PartialRatio("RETROPALA 420D", "COMBUSTIBLE OFICINA"), 25.0)
	assert.LessOrEqual(t, PartialRatio("EXCAVADORA 325BL", "COMBUSTIBLE OFICINA"), 25.0)
}
