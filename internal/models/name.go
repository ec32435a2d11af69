package models

import (
	"context"
	"fmt"
)

// NameSource says where a participant's display name comes from: either a
// literal string, or a lookup of a record (kind, id) in the profile
// backend. Exactly one form is set.
type NameSource struct {
	literal string
	kind    string
	id      string
	lookup  bool
}

// LiteralName is a display name known up front.
func LiteralName(name string) NameSource {
	return NameSource{literal: name}
}

// LookupName defers the display name to the profile backend.
func LookupName(kind, id string) NameSource {
	return NameSource{kind: kind, id: id, lookup: true}
}

// IsLookup reports whether the name must be resolved.
func (n NameSource) IsLookup() bool { return n.lookup }

// NameResolver fetches display names for Lookup sources. Implemented by the
// profile backend, outside this module.
type NameResolver interface {
	DisplayName(ctx context.Context, kind, id string) (string, error)
}

// Resolve returns the display name. Literal sources never touch r.
func (n NameSource) Resolve(ctx context.Context, r NameResolver) (string, error) {
	if !n.lookup {
		return n.literal, nil
	}
	if r == nil {
		return "", fmt.Errorf("no resolver for %s/%s", n.kind, n.id)
	}
	name, err := r.DisplayName(ctx, n.kind, n.id)
	if err != nil {
		return "", fmt.Errorf("resolving %s/%s: %w", n.kind, n.id, err)
	}
	return name, nil
}
