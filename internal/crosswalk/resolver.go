package crosswalk

import (
	"github.com/survey-pipeline/internal/refdata"
)

// Tier is the ordinal math-requirement bucket.
const (
	TierLow    = "low"
	TierMedium = "medium"
	TierHigh   = "high"
)

// TierRules holds the bucketing breakpoints and the manual per-code
// overrides that take precedence over the bucketed value.
type TierRules struct {
	LowMax    float64
	MediumMax float64
	Overrides map[int]string
}

// DefaultTierRules returns the standard breakpoints with no overrides.
func DefaultTierRules() TierRules {
	return TierRules{LowMax: 37.5, MediumMax: 58.5}
}

// MathTier buckets a requirement score, honouring any override for the code.
func (r TierRules) MathTier(code int, score float64) string {
	if forced, ok := r.Overrides[code]; ok {
		return forced
	}
	switch {
	case score < r.LowMax:
		return TierLow
	case score < r.MediumMax:
		return TierMedium
	default:
		return TierHigh
	}
}

// Request is one response needing classification: up to four free-text
// candidate labels and the respondent's gender (nil when unknown).
type Request struct {
	Row    int
	Labels [MaxCodes]string
	Female *bool
}

// Slot is the resolution outcome for one candidate label.
type Slot struct {
	Label string

	Code         *int
	OfficialName string

	MathReq        *float64
	LanguageReq    *float64
	ForeignLangReq *float64
	ScienceReq     *float64
	FemaleShare    *float64
	OwnGenderShare *float64
	MathTier       string
}

// Outcome is the per-response resolution result.
type Outcome struct {
	Row   int
	Slots [MaxCodes]Slot
}

// TypoCandidate is an advisory data-quality signal: a reviewed label whose
// code is absent from the reference table, most likely a typo in the
// crosswalk itself.
type TypoCandidate struct {
	RawLabel string
	Code     int
}

// Report aggregates what a resolver pass did, for the end-of-run summary.
type Report struct {
	Responses      int
	ResolvedSlots  int
	PendingSlots   int
	EmptySlots     int
	Staged         []string
	TypoCandidates []TypoCandidate
}

// Resolver classifies free-text responses via the crosswalk store and joins
// reference characteristics onto resolved codes.
type Resolver struct {
	store *Store
	ref   map[int]refdata.Characteristic
	tiers TierRules
}

// NewResolver creates a resolver over a loaded store and built reference
// table.
func NewResolver(store *Store, ref map[int]refdata.Characteristic, tiers TierRules) *Resolver {
	return &Resolver{store: store, ref: ref, tiers: tiers}
}

// Resolve processes all requests. Unseen labels are staged into the store
// as uncleaned; the returned report lists exactly the labels newly staged
// in this pass. Per-slot failures never stop the batch.
func (r *Resolver) Resolve(requests []Request) ([]Outcome, Report) {
	report := Report{Responses: len(requests)}
	outcomes := make([]Outcome, 0, len(requests))

	for _, req := range requests {
		out := Outcome{Row: req.Row}
		for i, label := range req.Labels {
			if label == "" {
				report.EmptySlots++
				continue
			}
			out.Slots[i] = r.resolveSlot(label, req.Female, &report)
		}
		outcomes = append(outcomes, out)
	}

	return outcomes, report
}

func (r *Resolver) resolveSlot(label string, female *bool, report *Report) Slot {
	slot := Slot{Label: label}

	entry, found := r.store.Lookup(label)
	if !found {
		if r.store.StageUncleaned(label) {
			report.Staged = append(report.Staged, label)
		}
		report.PendingSlots++
		return slot
	}
	if !entry.Cleaned {
		report.PendingSlots++
		return slot
	}

	code := entry.Codes[0]
	if code == nil {
		// Reviewed as "no code applies": resolved, nothing to join.
		report.ResolvedSlots++
		return slot
	}

	char, ok := r.ref[*code]
	if !ok {
		report.TypoCandidates = append(report.TypoCandidates, TypoCandidate{RawLabel: label, Code: *code})
		return slot
	}

	slot.Code = code
	slot.OfficialName = char.DisplayName
	if entry.OfficialNames[0] != "" {
		slot.OfficialName = entry.OfficialNames[0]
	}
	slot.MathReq = char.MathReq
	slot.LanguageReq = char.LanguageReq
	slot.ForeignLangReq = char.ForeignLangReq
	slot.ScienceReq = char.ScienceReq
	slot.FemaleShare = char.FemaleShare

	if char.MathReq != nil {
		slot.MathTier = r.tiers.MathTier(*code, *char.MathReq)
	} else if forced, ok := r.tiers.Overrides[*code]; ok {
		slot.MathTier = forced
	}

	if char.FemaleShare != nil && female != nil {
		share := *char.FemaleShare
		if !*female {
			share = 1 - share
		}
		slot.OwnGenderShare = &share
	}

	report.ResolvedSlots++
	return slot
}
