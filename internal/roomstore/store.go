// Package roomstore defines the keyed JSON document store that room records
// live in, plus helpers shared by its backends.
package roomstore

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
)

// Store holds one JSON object per path and pushes every change of a path to
// its subscribers. Every write bumps the top-level "rev" field.
type Store interface {
	// Create writes value only if path is absent; ErrConflict otherwise.
	Create(ctx context.Context, path string, value []byte) error
	// Put overwrites path unconditionally.
	Put(ctx context.Context, path string, value []byte) error
	// Get returns ErrNotFound for an absent path.
	Get(ctx context.Context, path string) ([]byte, error)
	// MultiUpdate sets several fields of an existing document in one write.
	// Keys are slash separated field paths ("gameState/turn"); a nil value
	// removes the field. Absent documents yield ErrNotFound.
	MultiUpdate(ctx context.Context, path string, fields map[string]any) error
	// Update runs fn against the current document and writes its result only
	// if nobody else wrote the path in between. Contention beyond the
	// backend's retry budget yields ErrConflict.
	Update(ctx context.Context, path string, fn UpdateFunc) error
	// Subscribe delivers the current value immediately and then every later
	// change; nil means the path was deleted. Delivery stops when the
	// returned function is called or ctx ends.
	Subscribe(ctx context.Context, path string, fn SnapshotFunc) (Unsubscribe, error)
	Delete(ctx context.Context, path string) error
	// List returns the paths starting with prefix, sorted.
	List(ctx context.Context, prefix string) ([]string, error)
}

// UpdateFunc receives the current document (nil if absent) and returns the
// replacement. Returning nil without error leaves the path untouched; an
// error aborts and is passed back to the caller of Update.
type UpdateFunc func(cur []byte) ([]byte, error)

// SnapshotFunc receives full documents; nil signals deletion.
type SnapshotFunc func(doc []byte)

// Unsubscribe is safe to call more than once.
type Unsubscribe func()

// Revision reads the "rev" field of doc, 0 when absent or unparsable.
func Revision(doc []byte) int64 {
	if len(doc) == 0 {
		return 0
	}
	var head struct {
		Rev int64 `json:"rev"`
	}
	if err := json.Unmarshal(doc, &head); err != nil {
		return 0
	}
	return head.Rev
}

// Stamp returns doc with "rev" set to rev. doc must be a JSON object.
func Stamp(doc []byte, rev int64) ([]byte, error) {
	obj, err := decodeObject(doc)
	if err != nil {
		return nil, err
	}
	obj["rev"] = rev
	return json.Marshal(obj)
}

// Next stamps next with the revision following cur.
func Next(cur, next []byte) ([]byte, error) { return Stamp(next, Revision(cur)+1) }

// ApplyFields merges slash separated field paths into doc.
func ApplyFields(doc []byte, fields map[string]any) ([]byte, error) {
	obj, err := decodeObject(doc)
	if err != nil {
		return nil, err
	}
	keys := make([]string, 0, len(fields))
	for k := range fields {
		keys = append(keys, k)
	}
	// parents sort before their children
	sort.Strings(keys)
	for _, k := range keys {
		parts := strings.Split(strings.Trim(k, "/"), "/")
		if len(parts) == 0 || parts[0] == "" {
			return nil, fmt.Errorf("roomstore: empty field path %q", k)
		}
		v, err := normalize(fields[k])
		if err != nil {
			return nil, fmt.Errorf("roomstore: field %s: %w", k, err)
		}
		setPath(obj, parts, v)
	}
	return json.Marshal(obj)
}

func setPath(obj map[string]any, parts []string, v any) {
	for _, p := range parts[:len(parts)-1] {
		child, ok := obj[p].(map[string]any)
		if !ok {
			if v == nil {
				return
			}
			child = map[string]any{}
			obj[p] = child
		}
		obj = child
	}
	last := parts[len(parts)-1]
	if v == nil {
		delete(obj, last)
		return
	}
	obj[last] = v
}

// normalize turns structs and typed slices into plain JSON values so the
// merged document marshals the same way regardless of the caller's types.
func normalize(v any) (any, error) {
	if v == nil {
		return nil, nil
	}
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	var out any
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func decodeObject(doc []byte) (map[string]any, error) {
	obj := map[string]any{}
	if len(doc) == 0 {
		return obj, nil
	}
	if err := json.Unmarshal(doc, &obj); err != nil {
		return nil, fmt.Errorf("roomstore: document is not a JSON object: %w", err)
	}
	if obj == nil {
		obj = map[string]any{}
	}
	return obj, nil
}
