// Package render turns a step's field schema into a view model. Component
// keys are mapped to a closed set of field kinds; anything unknown degrades
// to a Fallback field instead of failing the step.
package render

import (
	"sort"
	"strings"
)

// Kind is the variant of a field in the rendering tree.
type Kind string

const (
	KindPrimitive Kind = "primitive"
	KindGroup     Kind = "group"
	KindGrid      Kind = "grid"
	KindResult    Kind = "result"
	KindEmpty     Kind = "empty"
	KindFallback  Kind = "fallback"
)

var componentKinds = map[string]Kind{
	"text":        KindPrimitive,
	"textarea":    KindPrimitive,
	"email":       KindPrimitive,
	"password":    KindPrimitive,
	"number":      KindPrimitive,
	"currency":    KindPrimitive,
	"phone":       KindPrimitive,
	"url":         KindPrimitive,
	"date":        KindPrimitive,
	"datetime":    KindPrimitive,
	"time":        KindPrimitive,
	"select":      KindPrimitive,
	"multiselect": KindPrimitive,
	"radio":       KindPrimitive,
	"checkbox":    KindPrimitive,
	"switch":      KindPrimitive,
	"file":        KindPrimitive,
	"hidden":      KindPrimitive,
	"group":       KindGroup,
	"section":     KindGroup,
	"fieldset":    KindGroup,
	"card":        KindGroup,
	"tabs":        KindGroup,
	"grid":        KindGrid,
	"datagrid":    KindGrid,
	"table":       KindGrid,
	"repeater":    KindGrid,
	"result":      KindResult,
	"summary":     KindResult,
	"empty":       KindEmpty,
	"divider":     KindEmpty,
	"spacer":      KindEmpty,
}

// KindOf maps a component key to its kind. Keys are matched case
// insensitively; unknown keys are KindFallback.
func KindOf(component string) Kind {
	if kind, ok := componentKinds[normalizeComponent(component)]; ok {
		return kind
	}
	return KindFallback
}

// Components lists the component keys with a built-in kind.
func Components() []string {
	out := make([]string, 0, len(componentKinds))
	for key := range componentKinds {
		out = append(out, key)
	}
	sort.Strings(out)
	return out
}

func normalizeComponent(component string) string {
	return strings.ToLower(strings.TrimSpace(component))
}
