package schema

import "reflect"

// Filters is an optional structured predicate attached to a subscription.
// A nil Filters or all-zero value passes every event.
type Filters struct {
	Priority *Priority      `json:"priority,omitempty"`
	Source   *string        `json:"source,omitempty"`
	Custom   map[string]any `json:"custom,omitempty"`
}

// Empty reports whether the predicate constrains nothing.
func (f *Filters) Empty() bool {
	return f == nil || (f.Priority == nil && f.Source == nil && len(f.Custom) == 0)
}

// Match evaluates the predicate against an event. Custom keys must exist in
// the event payload with an equal value.
func (f *Filters) Match(evt Event) bool {
	if f == nil {
		return true
	}
	if f.Priority != nil && *f.Priority != evt.Priority {
		return false
	}
	if f.Source != nil && *f.Source != evt.Source {
		return false
	}
	for key, want := range f.Custom {
		got, ok := evt.Payload[key]
		if !ok || !reflect.DeepEqual(got, want) {
			return false
		}
	}
	return true
}

// Clone returns an independent copy of the predicate.
func (f *Filters) Clone() *Filters {
	if f == nil {
		return nil
	}
	out := new(Filters)
	if f.Priority != nil {
		p := *f.Priority
		out.Priority = &p
	}
	if f.Source != nil {
		s := *f.Source
		out.Source = &s
	}
	if len(f.Custom) > 0 {
		out.Custom = make(map[string]any, len(f.Custom))
		for k, v := range f.Custom {
			out.Custom[k] = v
		}
	}
	return out
}
