package catalog

import (
	"dispatchd/internal/domain"
	"dispatchd/internal/settings"
)

// Registry binds the code-declared template definitions to one settings
// snapshot. Build a fresh Registry per dispatch so configuration changes
// never race a send in flight.
type Registry struct {
	defs  []TemplateDefinition
	byKey map[string]TemplateDefinition
}

func NewRegistry(defs []TemplateDefinition, snap settings.Snapshot) *Registry {
	r := &Registry{
		defs:  make([]TemplateDefinition, 0, len(defs)),
		byKey: make(map[string]TemplateDefinition, len(defs)),
	}
	for _, d := range defs {
		switch d.Channel {
		case domain.ChannelSMS:
			d.PatternID = snap.PatternID(d.Key)
		case domain.ChannelTelegram:
			d.Text = snap.TemplateText(d.Key)
		}
		r.defs = append(r.defs, d)
		r.byKey[d.Key] = d
	}
	return r
}

func (r *Registry) Get(key string) (TemplateDefinition, bool) {
	d, ok := r.byKey[key]
	return d, ok
}

// All returns definitions in declaration order.
func (r *Registry) All() []TemplateDefinition {
	out := make([]TemplateDefinition, len(r.defs))
	copy(out, r.defs)
	return out
}

// ByCategory groups definitions for operator surfaces. Order within a
// category follows declaration order.
func (r *Registry) ByCategory() map[string][]TemplateDefinition {
	out := make(map[string][]TemplateDefinition)
	for _, d := range r.defs {
		out[d.Category] = append(out[d.Category], d)
	}
	return out
}

func (r *Registry) IsConfigured(key string) bool {
	d, ok := r.byKey[key]
	return ok && d.Configured()
}
