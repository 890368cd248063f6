package render

import "fmt"

// Widget describes a concrete field implementation known to the host.
type Widget struct {
	Component string
	Kind      Kind
	Name      string
}

// Registry resolves component keys to widgets. It is read only; renderers
// receive it at construction.
type Registry interface {
	Lookup(component string) (Widget, bool)
}

// StaticRegistry is an immutable Registry built once.
type StaticRegistry struct {
	widgets map[string]Widget
}

// NewStaticRegistry indexes widgets by component key. Later duplicates are
// rejected.
func NewStaticRegistry(widgets ...Widget) (*StaticRegistry, error) {
	r := &StaticRegistry{widgets: make(map[string]Widget, len(widgets))}
	for _, w := range widgets {
		key := normalizeComponent(w.Component)
		if key == "" {
			return nil, fmt.Errorf("widget component key is required")
		}
		if _, exists := r.widgets[key]; exists {
			return nil, fmt.Errorf("widget %s already registered", key)
		}
		if w.Kind == "" {
			w.Kind = KindOf(key)
		}
		if w.Name == "" {
			w.Name = key
		}
		r.widgets[key] = w
	}
	return r, nil
}

// Lookup returns the widget for component.
func (r *StaticRegistry) Lookup(component string) (Widget, bool) {
	if r == nil {
		return Widget{}, false
	}
	w, ok := r.widgets[normalizeComponent(component)]
	return w, ok
}

// resolveKind uses the built-in table first, then a registered widget's
// kind, else KindFallback.
func resolveKind(component string, reg Registry) Kind {
	if kind := KindOf(component); kind != KindFallback {
		return kind
	}
	if reg != nil {
		if w, ok := reg.Lookup(component); ok && w.Kind != "" {
			return w.Kind
		}
	}
	return KindFallback
}
