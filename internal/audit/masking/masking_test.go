package masking

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMaskSecret(t *testing.T) {
	assert.Equal(t, "", MaskSecret("  "))
	assert.Equal(t, "sk_****", MaskSecret("sk_abc"))
	assert.Equal(t, "sk_live_****6789", MaskSecret("sk_live_123456789"))
}

func TestMaskSensitive(t *testing.T) {
	out := MaskSensitive(map[string]any{
		"name":           "Lamp",
		"gemini_api_key": "AIzaSyExample1234",
		"nested":         map[string]any{"password": "hunter22", "price": 10.0},
		" ":              "dropped",
	})
	assert.Equal(t, "Lamp", out["name"])
	assert.Equal(t, "****1234", out["gemini_api_key"])
	nested := out["nested"].(map[string]any)
	assert.Equal(t, "****er22", nested["password"])
	assert.Equal(t, 10.0, nested["price"])
	assert.NotContains(t, out, " ")
	assert.Nil(t, MaskSensitive(nil))
}
