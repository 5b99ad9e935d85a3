package wizard

import (
	"github.com/smallbiznis/storeadmin/internal/records"
)

// ProductListingDraft rewrites the storefront copy of an existing product.
type ProductListingDraft struct {
	ProductID   string   `json:"product_id" validate:"required"`
	Name        string   `json:"name" validate:"required,max=200"`
	Description string   `json:"description" validate:"required,max=5000"`
	Tags        []string `json:"tags,omitempty" validate:"max=10,dive,required,max=40"`
}

type FAQDraft struct {
	Question string `json:"question" validate:"required,max=300"`
	Answer   string `json:"answer" validate:"required,max=3000"`
	Category string `json:"category,omitempty" validate:"max=80"`
}

type ThemeDraft struct {
	records.Theme
	Rationale string `json:"rationale,omitempty" validate:"max=1000"`
}

type ChatbotDraft struct {
	Name         string `json:"name" validate:"required,max=80"`
	Greeting     string `json:"greeting,omitempty" validate:"max=500"`
	SystemPrompt string `json:"system_prompt" validate:"required,max=20000"`
}

// schema helpers for the Gemini responseSchema dialect.
func objectSchema(properties map[string]any, required ...string) map[string]any {
	out := map[string]any{"type": "OBJECT", "properties": properties}
	if len(required) > 0 {
		out["required"] = required
	}
	return out
}

func arraySchema(items map[string]any) map[string]any {
	return map[string]any{"type": "ARRAY", "items": items}
}

func stringSchema() map[string]any {
	return map[string]any{"type": "STRING"}
}

var productListingSchema = objectSchema(map[string]any{
	"listings": arraySchema(objectSchema(map[string]any{
		"product_id":  stringSchema(),
		"name":        stringSchema(),
		"description": stringSchema(),
		"tags":        arraySchema(stringSchema()),
	}, "product_id", "name", "description")),
}, "listings")

var faqSchema = objectSchema(map[string]any{
	"entries": arraySchema(objectSchema(map[string]any{
		"question": stringSchema(),
		"answer":   stringSchema(),
		"category": stringSchema(),
	}, "question", "answer")),
}, "entries")

var themeSchema = objectSchema(map[string]any{
	"primary_color":    stringSchema(),
	"secondary_color":  stringSchema(),
	"accent_color":     stringSchema(),
	"background_color": stringSchema(),
	"text_color":       stringSchema(),
	"font_family":      stringSchema(),
	"tagline":          stringSchema(),
	"rationale":        stringSchema(),
}, "primary_color", "secondary_color", "background_color", "text_color")

var chatbotSchema = objectSchema(map[string]any{
	"name":          stringSchema(),
	"greeting":      stringSchema(),
	"system_prompt": stringSchema(),
}, "name", "system_prompt")
