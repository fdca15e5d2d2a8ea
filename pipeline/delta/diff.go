package delta

import "fmt"

// PreviousItemsState is the committed-state key under which a source
// component holds its prior observation.
const PreviousItemsState = "previous_items"

// Diff computes the operation log between a prior and a current observation.
//
// The emitted operations exactly partition the symmetric difference of the
// two item sets by id: ADDs for ids only in curr (in curr order), UPDATEs
// for ids in both whose canonical content hashes differ (in curr order),
// DELETEs for ids only in prev (in prev order, carrying the last-known
// value).
func Diff(prev, curr []Item) ([]Operation, error) {
	prevByID := make(map[string]Item, len(prev))
	for _, item := range prev {
		prevByID[item.ID] = item
	}

	var ops []Operation
	currIDs := make(map[string]bool, len(curr))
	for _, item := range curr {
		currIDs[item.ID] = true
		prior, existed := prevByID[item.ID]
		if !existed {
			ops = append(ops, Operation{Type: OpAdd, ItemID: item.ID, Item: item})
			continue
		}
		priorHash, err := ContentHash(prior.Content)
		if err != nil {
			return nil, fmt.Errorf("item %q: %w", item.ID, err)
		}
		currHash, err := ContentHash(item.Content)
		if err != nil {
			return nil, fmt.Errorf("item %q: %w", item.ID, err)
		}
		if priorHash != currHash {
			ops = append(ops, Operation{Type: OpUpdate, ItemID: item.ID, Item: item})
		}
	}
	for _, item := range prev {
		if !currIDs[item.ID] {
			ops = append(ops, Operation{Type: OpDelete, ItemID: item.ID, Item: item})
		}
	}
	return ops, nil
}

// SourceResult is the outcome of one source-side delta synthesis.
type SourceResult struct {
	// Operations is the ordered change log for this run.
	Operations []Operation

	// State is the new component state to stage (the current observation
	// under PreviousItemsState).
	State map[string]any

	// StopPipeline is set when a prior observation existed and nothing
	// changed, so the engine can short-circuit the run.
	StopPipeline bool
}

// Source performs the source side of the protocol for one run: given the
// component's prior committed state and the freshly observed items, it
// synthesizes the operation log, the new state, and the stop signal.
//
//   - No prior observation: ADD for every current item.
//   - Otherwise: the Diff of prior versus current.
//   - Empty log with a prior observation: StopPipeline is set; the
//     (identical) observation is still staged.
func Source(priorState map[string]any, current []Item) (SourceResult, error) {
	prev, hadPrior, err := previousItems(priorState)
	if err != nil {
		return SourceResult{}, err
	}

	var ops []Operation
	if !hadPrior {
		ops = make([]Operation, 0, len(current))
		for _, item := range current {
			ops = append(ops, Operation{Type: OpAdd, ItemID: item.ID, Item: item})
		}
	} else {
		ops, err = Diff(prev, current)
		if err != nil {
			return SourceResult{}, err
		}
	}

	return SourceResult{
		Operations:   ops,
		State:        map[string]any{PreviousItemsState: current},
		StopPipeline: hadPrior && len(ops) == 0,
	}, nil
}

func previousItems(state map[string]any) ([]Item, bool, error) {
	if state == nil {
		return nil, false, nil
	}
	raw, ok := state[PreviousItemsState]
	if !ok {
		return nil, false, nil
	}
	items, err := ItemsFromAny(raw)
	if err != nil {
		return nil, false, fmt.Errorf("corrupt %s state: %w", PreviousItemsState, err)
	}
	return items, true, nil
}
