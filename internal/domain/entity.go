package domain

import (
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// EntityKind identifies the Roblox entity a binding is keyed on.
type EntityKind string

const (
	KindGroup    EntityKind = "group"
	KindBadge    EntityKind = "badge"
	KindGamePass EntityKind = "gamepass"
	KindAsset    EntityKind = "asset"
)

// EntityKinds lists every bindable kind in display order.
var EntityKinds = []EntityKind{KindGroup, KindAsset, KindBadge, KindGamePass}

var titleCaser = cases.Title(language.English)

// ParseEntityKind maps user input (case-insensitive) to an EntityKind.
func ParseEntityKind(s string) (EntityKind, bool) {
	k := EntityKind(cases.Fold().String(strings.TrimSpace(s)))
	for _, known := range EntityKinds {
		if k == known {
			return k, true
		}
	}
	return "", false
}

// Label returns the title-cased name used in messages, e.g. "Gamepass".
func (k EntityKind) Label() string {
	return titleCaser.String(string(k))
}

// Valid reports whether k is one of the known kinds.
func (k EntityKind) Valid() bool {
	_, ok := ParseEntityKind(string(k))
	return ok
}
