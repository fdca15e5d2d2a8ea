package delta

import "fmt"

// PreviousGroupsState is the committed-state key under which a derived
// component holds its prior group emission.
const PreviousGroupsState = "previous_groups"

// Regrouper runs the component's full grouping over a set of items. It is
// supplied by the domain component; the merge rules below are generic.
type Regrouper func(items []Item) ([]Group, error)

// ApplyResult is the outcome of applying one operation log to prior groups.
type ApplyResult struct {
	// Emitted contains only the groups whose contents changed as a
	// consequence of the operations, in merged order.
	Emitted []Group

	// Merged is the full merged group set, which becomes the new prior.
	Merged []Group
}

// Apply merges an operation log into a prior group emission.
//
// Operations are partitioned by type; added and updated items are regrouped
// and the resulting groups merged into the prior set (item replacement by
// id, otherwise append; parent classes by set union; unknown groups
// appended). Deleted items are removed from every group in which they
// appear. The emitted set is exactly the groups touched by either path —
// the merge is commutative, so composition within one run is set-like.
//
// Callers handle the two protocol boundary cases before Apply: on the first
// run (no prior groups) run the Regrouper over all current items and emit
// everything; an empty operation list emits zero groups and preserves the
// prior (Apply returns exactly that).
func Apply(prior []Group, ops []Operation, regroup Regrouper) (ApplyResult, error) {
	if err := ValidateOperations(ops); err != nil {
		return ApplyResult{}, fmt.Errorf("invalid operation log: %w", err)
	}

	merged := cloneGroups(prior)
	changed := make(map[string]bool)

	var upserted []Item
	var deleted []Item
	for _, op := range ops {
		switch op.Type {
		case OpAdd, OpUpdate:
			upserted = append(upserted, op.Item)
		case OpDelete:
			deleted = append(deleted, op.Item)
		}
	}

	if len(upserted) > 0 {
		newGroups, err := regroup(upserted)
		if err != nil {
			return ApplyResult{}, fmt.Errorf("regrouping failed: %w", err)
		}
		for _, group := range newGroups {
			idx := findGroup(merged, group.Name)
			if idx < 0 {
				merged = append(merged, group)
				changed[group.Name] = true
				continue
			}
			mergeGroup(&merged[idx], group)
			changed[group.Name] = true
		}
	}

	for _, item := range deleted {
		for i := range merged {
			if removeItem(&merged[i], item.ID) {
				changed[merged[i].Name] = true
			}
		}
	}

	result := ApplyResult{Merged: merged}
	for _, group := range merged {
		if changed[group.Name] {
			result.Emitted = append(result.Emitted, group)
		}
	}
	return result, nil
}

// mergeGroup folds an incoming group into an existing one: items replace
// prior entries with the same id or append; parent classes union in
// first-seen order.
func mergeGroup(dst *Group, src Group) {
	for _, item := range src.Items {
		replaced := false
		for i := range dst.Items {
			if dst.Items[i].ID == item.ID {
				dst.Items[i] = item
				replaced = true
				break
			}
		}
		if !replaced {
			dst.Items = append(dst.Items, item)
		}
	}
	known := make(map[string]bool, len(dst.ParentClasses))
	for _, class := range dst.ParentClasses {
		known[class] = true
	}
	for _, class := range src.ParentClasses {
		if !known[class] {
			dst.ParentClasses = append(dst.ParentClasses, class)
			known[class] = true
		}
	}
}

// removeItem deletes the item with the given id, reporting whether the
// group changed.
func removeItem(g *Group, id string) bool {
	for i := range g.Items {
		if g.Items[i].ID == id {
			g.Items = append(g.Items[:i:i], g.Items[i+1:]...)
			return true
		}
	}
	return false
}

func findGroup(groups []Group, name string) int {
	for i := range groups {
		if groups[i].Name == name {
			return i
		}
	}
	return -1
}

func cloneGroups(groups []Group) []Group {
	out := make([]Group, len(groups))
	for i, group := range groups {
		items := make([]Item, len(group.Items))
		copy(items, group.Items)
		classes := make([]string, len(group.ParentClasses))
		copy(classes, group.ParentClasses)
		if len(classes) == 0 {
			classes = nil
		}
		out[i] = Group{Name: group.Name, Items: items, ParentClasses: classes}
	}
	return out
}
