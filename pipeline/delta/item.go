// Package delta formalizes the incremental change-detection protocol shared
// by source and derived pipeline components.
//
// Source components observe an external system and synthesize an ordered
// operation log (ADD/UPDATE/DELETE) against their previous observation
// (Diff, Source). Derived components maintain aggregates over Groups and
// apply the log incrementally (Apply). Content equality is decided by a
// canonical 128-bit hash (ContentHash) so structurally identical values
// compare equal regardless of map key order.
package delta

import (
	"encoding/json"
	"fmt"
)

// OpType classifies one operation in the change log.
type OpType string

const (
	OpAdd    OpType = "ADD"
	OpUpdate OpType = "UPDATE"
	OpDelete OpType = "DELETE"
)

// Item is an opaque unit of work flowing between components. ID is stable
// across runs; Content is an arbitrary structured value, immutable within a
// run. Content equality is defined by ContentHash.
type Item struct {
	ID      string `json:"id"`
	Content any    `json:"content"`
}

// Operation is a record of change for one item. For DELETE operations Item
// carries the last-known value. Operations are ordered within a single
// emission but carry no ordering between runs.
type Operation struct {
	Type   OpType `json:"type"`
	ItemID string `json:"item_id"`
	Item   Item   `json:"item"`
}

// Group is a named collection of items with a set of parent-class tags.
// Item order is insertion order and observable; ParentClasses preserves
// first-seen order and is merged by set union.
type Group struct {
	Name          string   `json:"name"`
	Items         []Item   `json:"items"`
	ParentClasses []string `json:"parent_classes,omitempty"`
}

// ContainsItem reports whether the group holds an item with the given id.
func (g Group) ContainsItem(id string) bool {
	for _, item := range g.Items {
		if item.ID == id {
			return true
		}
	}
	return false
}

// ValidateOperations checks the well-formedness rules of one emission: no
// two operations may share an item_id (a same-run add-then-update must be
// coalesced upstream), every operation needs a known type and an item id.
func ValidateOperations(ops []Operation) error {
	seen := make(map[string]bool, len(ops))
	for i, op := range ops {
		if op.ItemID == "" {
			return fmt.Errorf("operation %d has no item_id", i)
		}
		switch op.Type {
		case OpAdd, OpUpdate, OpDelete:
		default:
			return fmt.Errorf("operation %d has unknown type %q", i, op.Type)
		}
		if seen[op.ItemID] {
			return fmt.Errorf("duplicate item_id %q in operation list", op.ItemID)
		}
		seen[op.ItemID] = true
	}
	return nil
}

// ItemsFromAny decodes a value that round-tripped through JSON (for example
// out of a committed state map) back into items.
func ItemsFromAny(value any) ([]Item, error) {
	if value == nil {
		return nil, nil
	}
	raw, err := json.Marshal(value)
	if err != nil {
		return nil, fmt.Errorf("failed to re-serialize items: %w", err)
	}
	var items []Item
	if err := json.Unmarshal(raw, &items); err != nil {
		return nil, fmt.Errorf("failed to decode items: %w", err)
	}
	return items, nil
}

// GroupsFromAny decodes a JSON-round-tripped value back into groups.
func GroupsFromAny(value any) ([]Group, error) {
	if value == nil {
		return nil, nil
	}
	raw, err := json.Marshal(value)
	if err != nil {
		return nil, fmt.Errorf("failed to re-serialize groups: %w", err)
	}
	var groups []Group
	if err := json.Unmarshal(raw, &groups); err != nil {
		return nil, fmt.Errorf("failed to decode groups: %w", err)
	}
	return groups, nil
}

// OperationsFromAny decodes a JSON-round-tripped value back into operations.
func OperationsFromAny(value any) ([]Operation, error) {
	if value == nil {
		return nil, nil
	}
	raw, err := json.Marshal(value)
	if err != nil {
		return nil, fmt.Errorf("failed to re-serialize operations: %w", err)
	}
	var ops []Operation
	if err := json.Unmarshal(raw, &ops); err != nil {
		return nil, fmt.Errorf("failed to decode operations: %w", err)
	}
	return ops, nil
}
