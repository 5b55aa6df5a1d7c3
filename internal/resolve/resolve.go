// Package resolve turns an event's flat token map into the channel-specific
// payload: an ordered argument list for SMS patterns, substituted text for
// Telegram templates.
package resolve

import (
	"fmt"
	"regexp"

	"dispatchd/internal/catalog"
)

// MissingTokenError halts a dispatch before any network call. Partially
// filled pattern sends must never reach a provider.
type MissingTokenError struct {
	TemplateKey string
	Token       string
}

func (e *MissingTokenError) Error() string {
	return fmt.Sprintf("missing required token %q for template %q", e.Token, e.TemplateKey)
}

// Positional produces one value per declared token, in declaration order.
// An explicitly supplied empty string is allowed; an absent token is not.
// Extra keys in values are ignored so callers can evolve ahead of templates.
func Positional(def catalog.TemplateDefinition, values map[string]string) ([]string, error) {
	args := make([]string, 0, len(def.Tokens))
	for _, tok := range def.Tokens {
		v, ok := values[tok]
		if !ok {
			return nil, &MissingTokenError{TemplateKey: def.Key, Token: tok}
		}
		args = append(args, v)
	}
	return args, nil
}

var placeholderRe = regexp.MustCompile(`\{(\w+)\}`)

// Placeholders lists the {name}-style placeholders in text, deduplicated,
// in order of first occurrence.
func Placeholders(text string) []string {
	seen := make(map[string]bool)
	var out []string
	for _, m := range placeholderRe.FindAllStringSubmatch(text, -1) {
		name := m[1]
		if seen[name] {
			continue
		}
		seen[name] = true
		out = append(out, name)
	}
	return out
}

// Named substitutes every {name} occurrence in text. A placeholder with no
// supplied value becomes the empty string: Telegram templates are free text
// and tolerate partial fill, unlike billed SMS patterns.
func Named(text string, values map[string]string) string {
	return placeholderRe.ReplaceAllStringFunc(text, func(m string) string {
		name := m[1 : len(m)-1]
		return values[name]
	})
}
