// Package reconcile merges a resume's existing items with AI suggested
// replacements and additions into a bounded, deterministic final list.
package reconcile

import (
	"fmt"
	"strings"

	"golang.org/x/text/unicode/norm"

	"resumeopt/internal/errors"
	"resumeopt/internal/types"
)

const (
	// DefaultCap is the maximum number of items a section may hold.
	DefaultCap = 3
	// DefaultSuitabilityThreshold is the minimum score for an item to be kept.
	DefaultSuitabilityThreshold = 80
)

// Policy holds the tunable knobs of a reconciliation.
type Policy struct {
	Cap       int
	Threshold int
	// KeepUnanalyzed keeps items the analysis did not mention instead of dropping them.
	KeepUnanalyzed bool
}

// DefaultPolicy returns the policy used when nothing is configured.
func DefaultPolicy() Policy {
	return Policy{Cap: DefaultCap, Threshold: DefaultSuitabilityThreshold}
}

func (p Policy) cap() int {
	if p.Cap < 1 {
		return DefaultCap
	}
	return p.Cap
}

// Analyzed is an original item joined with its verdict.
type Analyzed struct {
	Item    types.CandidateItem
	Verdict types.ItemVerdict
	Matched bool
}

// Suitable reports whether the verdict clears the threshold. Verdicts that
// carry no score fall back to their boolean flag.
func (a Analyzed) Suitable(threshold int) bool {
	if !a.Matched {
		return false
	}
	if a.Verdict.Score > 0 {
		return a.Verdict.Score >= threshold
	}
	return a.Verdict.Suitable
}

func (a Analyzed) kept(p Policy) bool {
	if !a.Matched {
		return p.KeepUnanalyzed
	}
	return a.Suitable(p.Threshold)
}

// Key normalizes a title into the natural key used for matching: trimmed,
// case-sensitive, NFC normalized.
func Key(title string) string {
	return norm.NFC.String(strings.TrimSpace(title))
}

// Join pairs every original item with the first verdict sharing its key.
func Join(original []types.CandidateItem, verdicts []types.ItemVerdict) []Analyzed {
	byKey := make(map[string]types.ItemVerdict, len(verdicts))
	for _, v := range verdicts {
		k := Key(v.Title)
		if _, seen := byKey[k]; !seen {
			byKey[k] = v
		}
	}

	joined := make([]Analyzed, 0, len(original))
	for _, item := range original {
		v, ok := byKey[Key(item.Title)]
		joined = append(joined, Analyzed{Item: item, Verdict: v, Matched: ok})
	}
	return joined
}

// Input is everything Reconcile needs. Replacements come before additions.
type Input struct {
	Items        []Analyzed
	Replacements []types.ReplacementSelection
	Additions    []types.CandidateItem
}

// Reconcile computes the final item list. It never mutates its input and
// returns identical output for identical input.
func Reconcile(in Input, p Policy) types.ReconciliationResult {
	limit := p.cap()

	final := make([]types.CandidateItem, 0, limit)
	// Suitable items past the cap are removed like unsuitable ones.
	for _, a := range in.Items {
		if len(final) >= limit {
			break
		}
		if a.kept(p) {
			final = append(final, cloneItem(a.Item))
		}
	}
	kept := len(final)

	incoming := make([]types.CandidateItem, 0, len(in.Replacements)+len(in.Additions))
	for _, r := range in.Replacements {
		incoming = append(incoming, r.Item)
	}
	incoming = append(incoming, in.Additions...)

	for _, item := range incoming {
		if len(final) >= limit {
			break
		}
		final = append(final, cloneItem(item))
	}

	added := len(final) - kept
	return types.ReconciliationResult{
		FinalItems:   final,
		KeptCount:    kept,
		RemovedCount: len(in.Items) - kept,
		AddedCount:   added,
		DroppedCount: len(incoming) - added,
		CapReached:   len(final) >= limit,
	}
}

// Run joins original items with the request's verdicts and reconciles them.
func Run(original []types.CandidateItem, req types.ReconcileInput, p Policy) types.ReconciliationResult {
	return Reconcile(Input{
		Items:        Join(original, req.Verdicts),
		Replacements: req.Replacements,
		Additions:    req.Additions,
	}, p)
}

// ValidateSelection rejects replacements that target an item which is not in
// the original list or which is being kept anyway.
func ValidateSelection(items []Analyzed, replacements []types.ReplacementSelection, p Policy) error {
	byKey := make(map[string]Analyzed, len(items))
	for _, a := range items {
		byKey[Key(a.Item.Title)] = a
	}

	for i, r := range replacements {
		if Key(r.Item.Title) == "" {
			return errors.NewValidationError(errors.ErrCodeInvalidInput,
				fmt.Sprintf("replacement %d has an empty title", i), nil)
		}
		a, ok := byKey[Key(r.Original)]
		if !ok {
			return errors.NewValidationError(errors.ErrCodeInvalidInput,
				fmt.Sprintf("replacement %d targets unknown item %q", i, r.Original), nil)
		}
		if a.kept(p) {
			return errors.NewValidationError(errors.ErrCodeInvalidInput,
				fmt.Sprintf("replacement %d targets item %q which is already kept", i, r.Original), nil)
		}
	}
	return nil
}

func cloneItem(item types.CandidateItem) types.CandidateItem {
	out := item
	if item.Content != nil {
		out.Content = append([]string(nil), item.Content...)
	}
	return out
}
