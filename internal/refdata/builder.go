// Package refdata builds the reference characteristics table: one record
// per canonical code, aggregated from the raw catalogue extract and extended
// with synthetic sentinel codes for non-catalogue answers.
package refdata

import (
	"fmt"
	"sort"
	"strings"
)

// Characteristic is one canonical code's attributes after building.
// Negative codes are synthetic sentinels and carry nil numeric fields.
type Characteristic struct {
	Code        int
	DisplayName string

	MathReq        *float64
	LanguageReq    *float64
	ForeignLangReq *float64
	ScienceReq     *float64
	FemaleShare    *float64

	// TotalPopulation is the aggregation weight; nil when unknown for the
	// whole collapse group.
	TotalPopulation *float64

	// Classification fields are carried through unchanged from the
	// first-seen row of each collapse group.
	FieldCode string
	FieldName string
}

// IsSentinel reports whether the record is a synthetic non-catalogue code.
func (c Characteristic) IsSentinel() bool {
	return c.Code < 0
}

// RawRow is one row of the raw catalogue extract, one per
// (code x specialization) pair.
type RawRow struct {
	Code     *int
	BaseCode *int

	DisplayName string
	AltName     string

	MathReq        *float64
	LanguageReq    *float64
	ForeignLangReq *float64
	ScienceReq     *float64
	FemaleShare    *float64
	Population     *float64

	FieldCode string
	FieldName string
}

// PointFix corrects a known mis-coded row, matched by exact display name.
type PointFix struct {
	Name string
	Code int
}

// Sentinel is a synthetic negative code appended to the built table.
type Sentinel struct {
	Code int
	Name string
}

// Config is the injectable fix-up data for one build. These are tables,
// not logic: they change when the upstream catalogue changes, not when the
// algorithm does.
type Config struct {
	PointFixes    []PointFix
	ObsoleteCodes []int

	// NewerProfessionCode/Name add one occupation missing from the source
	// catalogue, copying numeric attributes from the occupation named by
	// CopyFrom.
	NewerProfessionCode     int
	NewerProfessionName     string
	NewerProfessionCopyFrom string

	Sentinels   []Sentinel
	NameAliases map[string]string
}

// Build runs the full characteristics build. Steps are applied in a fixed
// order; each is a total function over the prior step's output. A duplicate
// code after the collapse step means the input catalogue changed shape and
// is a fatal error.
func Build(raw []RawRow, cfg Config) (map[int]Characteristic, error) {
	rows := applyPointFixes(raw, cfg.PointFixes)
	rows = dropUnusable(rows, cfg.ObsoleteCodes)
	rows = collapseSpecializations(rows)

	chars := aggregateByCode(rows)

	fillDisplayNames(chars, rows)

	if cfg.NewerProfessionCode != 0 {
		if err := appendNewerProfession(chars, cfg); err != nil {
			return nil, err
		}
	}

	for _, s := range cfg.Sentinels {
		if _, exists := chars[s.Code]; exists {
			return nil, fmt.Errorf("sentinel code %d collides with an existing record", s.Code)
		}
		chars[s.Code] = Characteristic{Code: s.Code, DisplayName: s.Name}
	}

	canonicalizeNames(chars, cfg.NameAliases)

	return chars, nil
}

// applyPointFixes corrects codes of rows matched by exact display name.
func applyPointFixes(raw []RawRow, fixes []PointFix) []RawRow {
	if len(fixes) == 0 {
		return raw
	}
	byName := make(map[string]int, len(fixes))
	for _, f := range fixes {
		byName[f.Name] = f.Code
	}

	rows := make([]RawRow, len(raw))
	copy(rows, raw)
	for i := range rows {
		if code, ok := byName[rows[i].DisplayName]; ok {
			fixed := code
			rows[i].Code = &fixed
		}
	}
	return rows
}

// dropUnusable removes rows with a null code and rows carrying an obsolete
// legacy code.
func dropUnusable(rows []RawRow, obsolete []int) []RawRow {
	dead := make(map[int]bool, len(obsolete))
	for _, code := range obsolete {
		dead[code] = true
	}

	var kept []RawRow
	for _, r := range rows {
		if r.Code == nil || dead[*r.Code] {
			continue
		}
		kept = append(kept, r)
	}
	return kept
}

// collapseSpecializations reassigns specialization rows to their base code
// when the base group has more than one specialization. A base group with a
// single member keeps its own code and population unchanged.
func collapseSpecializations(rows []RawRow) []RawRow {
	baseCount := make(map[int]int)
	for _, r := range rows {
		if r.BaseCode != nil {
			baseCount[*r.BaseCode]++
		}
	}

	out := make([]RawRow, len(rows))
	copy(out, rows)
	for i := range out {
		if out[i].BaseCode != nil && baseCount[*out[i].BaseCode] > 1 {
			base := *out[i].BaseCode
			out[i].Code = &base
		}
	}
	return out
}

// aggregateByCode groups rows by final code and aggregates numeric fields
// as the population-weighted mean. When every row of a group has a null
// population the mean falls back to unweighted and the group total stays
// null: a null-population group must not degenerate into a zero-weighted
// average. Grouping by code makes the unique-code invariant structural
// here; the injected rows added later are the only way to violate it, and
// those additions are checked.
func aggregateByCode(rows []RawRow) map[int]Characteristic {
	groups := make(map[int][]RawRow)
	var order []int
	for _, r := range rows {
		code := *r.Code
		if _, seen := groups[code]; !seen {
			order = append(order, code)
		}
		groups[code] = append(groups[code], r)
	}
	sort.Ints(order)

	chars := make(map[int]Characteristic, len(order))
	for _, code := range order {
		members := groups[code]
		first := members[0]

		c := Characteristic{
			Code:        code,
			DisplayName: first.DisplayName,
			FieldCode:   first.FieldCode,
			FieldName:   first.FieldName,
		}

		weighted := false
		var totalWeight float64
		for _, m := range members {
			if m.Population != nil {
				weighted = true
				totalWeight += *m.Population
			}
		}
		if weighted {
			c.TotalPopulation = &totalWeight
		}

		c.MathReq = weightedMean(members, weighted, func(r RawRow) *float64 { return r.MathReq })
		c.LanguageReq = weightedMean(members, weighted, func(r RawRow) *float64 { return r.LanguageReq })
		c.ForeignLangReq = weightedMean(members, weighted, func(r RawRow) *float64 { return r.ForeignLangReq })
		c.ScienceReq = weightedMean(members, weighted, func(r RawRow) *float64 { return r.ScienceReq })
		c.FemaleShare = weightedMean(members, weighted, func(r RawRow) *float64 { return r.FemaleShare })

		chars[code] = c
	}

	return chars
}

// weightedMean aggregates one numeric field over a collapse group. In
// weighted mode rows without a population are excluded entirely; otherwise
// every non-null value counts with weight 1.
func weightedMean(members []RawRow, weighted bool, field func(RawRow) *float64) *float64 {
	var sum, weightSum float64
	any := false

	for _, m := range members {
		v := field(m)
		if v == nil {
			continue
		}
		w := 1.0
		if weighted {
			if m.Population == nil {
				continue
			}
			w = *m.Population
		}
		sum += *v * w
		weightSum += w
		any = true
	}

	if !any || weightSum == 0 {
		return nil
	}
	mean := sum / weightSum
	return &mean
}

// fillDisplayNames replaces empty display names with the fallback name from
// the first raw row of the same code.
func fillDisplayNames(chars map[int]Characteristic, rows []RawRow) {
	for code, c := range chars {
		if c.DisplayName != "" {
			continue
		}
		for _, r := range rows {
			if *r.Code == code && r.AltName != "" {
				c.DisplayName = r.AltName
				chars[code] = c
				break
			}
		}
	}
}

// appendNewerProfession adds the configured occupation by copying numeric
// attributes from an existing record matched by display name.
func appendNewerProfession(chars map[int]Characteristic, cfg Config) error {
	var source *Characteristic
	for code := range chars {
		c := chars[code]
		if c.DisplayName == cfg.NewerProfessionCopyFrom {
			source = &c
			break
		}
	}
	if source == nil {
		return fmt.Errorf("newer profession source %q not found in built table", cfg.NewerProfessionCopyFrom)
	}
	if _, exists := chars[cfg.NewerProfessionCode]; exists {
		return fmt.Errorf("newer profession code %d already present", cfg.NewerProfessionCode)
	}

	chars[cfg.NewerProfessionCode] = Characteristic{
		Code:           cfg.NewerProfessionCode,
		DisplayName:    cfg.NewerProfessionName,
		MathReq:        source.MathReq,
		LanguageReq:    source.LanguageReq,
		ForeignLangReq: source.ForeignLangReq,
		ScienceReq:     source.ScienceReq,
		FemaleShare:    source.FemaleShare,
		FieldCode:      source.FieldCode,
		FieldName:      source.FieldName,
	}
	return nil
}

// canonicalizeNames rewrites known display-name aliases to their canonical
// form.
func canonicalizeNames(chars map[int]Characteristic, aliases map[string]string) {
	if len(aliases) == 0 {
		return
	}
	for code, c := range chars {
		if canonical, ok := aliases[c.DisplayName]; ok {
			c.DisplayName = canonical
			chars[code] = c
		}
	}
}

// ByName returns a display-name index over the built table, used by the
// crosswalk suggestion engine. Sentinels are included so review can offer
// them directly.
func ByName(chars map[int]Characteristic) map[string]int {
	idx := make(map[string]int, len(chars))
	for code, c := range chars {
		idx[strings.ToUpper(strings.TrimSpace(c.DisplayName))] = code
	}
	return idx
}
