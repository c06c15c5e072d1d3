// Package pipeline wires the cleaning stages together: cohort dedupe,
// reference build, crosswalk resolution and the pending-review export.
// Each stage reads its input files in full, transforms in memory, writes
// its outputs in full and records a run in the ledger.
package pipeline

import (
	"fmt"
	"log"

	"github.com/survey-pipeline/internal/config"
	"github.com/survey-pipeline/internal/crosswalk"
	"github.com/survey-pipeline/internal/debug"
	"github.com/survey-pipeline/internal/refdata"
	"github.com/survey-pipeline/internal/runlog"
	"github.com/survey-pipeline/internal/survey"
	"github.com/survey-pipeline/internal/table"
)

// Pipeline holds the loaded configuration and the open run ledger.
type Pipeline struct {
	cfg    *config.Config
	ledger *runlog.Ledger
}

// New opens a pipeline over the configuration, including the run ledger.
func New(cfg *config.Config) (*Pipeline, error) {
	ledger, err := runlog.Open(cfg.Paths.RunLedger)
	if err != nil {
		return nil, err
	}
	return &Pipeline{cfg: cfg, ledger: ledger}, nil
}

// Close releases the run ledger.
func (p *Pipeline) Close() error {
	return p.ledger.Close()
}

// Ledger exposes the run ledger for the runs listing command.
func (p *Pipeline) Ledger() *runlog.Ledger {
	return p.ledger
}

// Config returns the loaded configuration.
func (p *Pipeline) Config() *config.Config {
	return p.cfg
}

// DedupeSummary reports one cohort dedupe stage.
type DedupeSummary struct {
	Cohort     string
	Input      int
	Survivors  int
	Eliminated int

	ResponseIDGroups int
	EmailGroups      int
	NameGroups       int

	BadTimestamps int
	SkippedPasses []string
}

// DedupeCohort runs duplicate resolution for one configured cohort and
// writes the deduplicated output with identifying columns stripped.
//
// A missing input file or ResponseId column is fatal. Missing email or
// name columns degrade the run instead: the affected pass is skipped with
// a warning and resolution proceeds on the remaining identity keys.
func (p *Pipeline) DedupeCohort(name string) (*DedupeSummary, error) {
	cohort, ok := p.cfg.Cohorts[name]
	if !ok {
		return nil, fmt.Errorf("unknown cohort %q", name)
	}

	run, err := p.ledger.StartRun("dedupe", name)
	if err != nil {
		return nil, err
	}
	defer debug.Timing(p.cfg.Debug, "dedupe "+name)()

	t, err := table.ReadCSV(cohort.Responses)
	if err != nil {
		return nil, fmt.Errorf("cohort %s: %w", name, err)
	}

	schema := table.ResolveSchema(t, map[string]string{
		"response_id":  cohort.Columns.ResponseID,
		"submitted_at": cohort.Columns.SubmittedAt,
		"email":        cohort.Columns.Email,
		"first_name":   cohort.Columns.FirstName,
		"last_name":    cohort.Columns.LastName,
	})
	if !schema.Has("response_id") {
		return nil, fmt.Errorf("cohort %s: response id column %q not found in %s",
			name, cohort.Columns.ResponseID, cohort.Responses)
	}
	if !schema.Has("submitted_at") {
		log.Printf("WARNING: cohort %s has no submission timestamp column; ties resolve by input order", name)
	}

	policy, ok := survey.ParsePolicy(cohort.DedupPolicy)
	if !ok {
		return nil, fmt.Errorf("cohort %s: unknown dedup policy %q", name, cohort.DedupPolicy)
	}

	records, badTimestamps := survey.FromTable(t, schema)
	if badTimestamps > 0 {
		log.Printf("WARNING: cohort %s has %d unparseable submission timestamps; those records rank last",
			name, badTimestamps)
	}

	opts := survey.Options{
		SkipEmail:    !schema.Has("email"),
		SkipNamePair: !schema.Has("first_name") || !schema.Has("last_name"),
	}
	if opts.SkipEmail {
		log.Printf("WARNING: cohort %s has no email column; skipping the email identity pass", name)
	}
	if opts.SkipNamePair {
		log.Printf("WARNING: cohort %s is missing a name column; skipping the name identity pass", name)
	}

	result := survey.Resolve(records, policy, opts)

	keep := make(map[int]bool, len(result.Survivors))
	for _, rec := range result.Survivors {
		keep[rec.Row] = true
	}
	t.KeepRows(keep)
	t.DropColumns(cohort.Columns.Email, cohort.Columns.FirstName, cohort.Columns.LastName)

	if err := t.WriteCSV(cohort.DedupedOutput); err != nil {
		return nil, fmt.Errorf("cohort %s: %w", name, err)
	}

	summary := &DedupeSummary{
		Cohort:           name,
		Input:            len(records),
		Survivors:        len(result.Survivors),
		Eliminated:       len(result.Eliminated),
		ResponseIDGroups: result.ResponseIDGroups,
		EmailGroups:      result.EmailGroups,
		NameGroups:       result.NameGroups,
		BadTimestamps:    badTimestamps,
	}
	for _, kt := range result.SkippedPasses {
		summary.SkippedPasses = append(summary.SkippedPasses, kt.String())
	}

	run.Processed = summary.Input
	run.Kept = summary.Survivors
	run.Dropped = summary.Eliminated
	run.Advisories = badTimestamps + len(summary.SkippedPasses)
	if err := p.ledger.CompleteRun(run); err != nil {
		log.Printf("WARNING: failed to record run: %v", err)
	}

	return summary, nil
}

// BuildReference reads the raw catalogue and builds the characteristics
// table, applying the configured fix-ups.
func (p *Pipeline) BuildReference() (map[int]refdata.Characteristic, error) {
	defer debug.Timing(p.cfg.Debug, "build reference")()

	ref := p.cfg.Reference
	t, err := table.ReadCSV(ref.Catalogue)
	if err != nil {
		return nil, fmt.Errorf("reference catalogue: %w", err)
	}

	schema := table.ResolveSchema(t, map[string]string{
		"code":             ref.Columns.Code,
		"base_code":        ref.Columns.BaseCode,
		"name":             ref.Columns.Name,
		"alt_name":         ref.Columns.AltName,
		"math":             ref.Columns.Math,
		"language":         ref.Columns.Language,
		"foreign_language": ref.Columns.ForeignLanguage,
		"science":          ref.Columns.Science,
		"female_share":     ref.Columns.FemaleShare,
		"population":       ref.Columns.Population,
		"field_code":       ref.Columns.FieldCode,
		"field_name":       ref.Columns.FieldName,
	})
	if !schema.Has("code") {
		return nil, fmt.Errorf("reference catalogue: code column %q not found in %s",
			ref.Columns.Code, ref.Catalogue)
	}

	raw := make([]refdata.RawRow, 0, len(t.Rows))
	for i := range t.Rows {
		raw = append(raw, refdata.RawRow{
			Code:           table.ParseInt(schema.Value(t, i, "code")),
			BaseCode:       table.ParseInt(schema.Value(t, i, "base_code")),
			DisplayName:    schema.Value(t, i, "name"),
			AltName:        schema.Value(t, i, "alt_name"),
			MathReq:        table.ParseFloat(schema.Value(t, i, "math")),
			LanguageReq:    table.ParseFloat(schema.Value(t, i, "language")),
			ForeignLangReq: table.ParseFloat(schema.Value(t, i, "foreign_language")),
			ScienceReq:     table.ParseFloat(schema.Value(t, i, "science")),
			FemaleShare:    table.ParseFloat(schema.Value(t, i, "female_share")),
			Population:     table.ParseFloat(schema.Value(t, i, "population")),
			FieldCode:      schema.Value(t, i, "field_code"),
			FieldName:      schema.Value(t, i, "field_name"),
		})
	}

	return refdata.Build(raw, p.refConfig())
}

func (p *Pipeline) refConfig() refdata.Config {
	ref := p.cfg.Reference

	cfg := refdata.Config{
		ObsoleteCodes:           ref.ObsoleteCodes,
		NewerProfessionCode:     ref.NewerProfession.Code,
		NewerProfessionName:     ref.NewerProfession.Name,
		NewerProfessionCopyFrom: ref.NewerProfession.CopyFrom,
		NameAliases:             ref.NameAliases,
	}
	for _, f := range ref.PointFixes {
		cfg.PointFixes = append(cfg.PointFixes, refdata.PointFix{Name: f.Name, Code: f.Code})
	}
	for _, s := range ref.Sentinels {
		cfg.Sentinels = append(cfg.Sentinels, refdata.Sentinel{Code: s.Code, Name: s.Name})
	}
	return cfg
}

// TierRules builds the crosswalk tier rules from the configuration.
func (p *Pipeline) TierRules() crosswalk.TierRules {
	rules := crosswalk.TierRules{
		LowMax:    p.cfg.Tiers.LowMax,
		MediumMax: p.cfg.Tiers.MediumMax,
		Overrides: make(map[int]string, len(p.cfg.Tiers.Overrides)),
	}
	for _, o := range p.cfg.Tiers.Overrides {
		rules.Overrides[o.Code] = o.Tier
	}
	return rules
}

// ResolveSummary reports one cohort resolution stage.
type ResolveSummary struct {
	Cohort string
	crosswalk.Report
}

// slotColumns are the per-slot output columns appended by ResolveCohort,
// in order, suffixed with the 1-based slot number.
var slotColumns = []string{
	"code", "official_name", "math_req", "lang_req", "forlang_req",
	"science_req", "math_tier", "female_share", "own_gender_share",
}

// ResolveCohort classifies the free-text answers of a deduplicated cohort
// against the crosswalk store, appends the joined reference characteristics
// as new columns and writes the resolved output. Labels never seen before
// are staged into the store for manual review; the store is saved back
// regardless of how many slots resolved.
func (p *Pipeline) ResolveCohort(name string) (*ResolveSummary, error) {
	cohort, ok := p.cfg.Cohorts[name]
	if !ok {
		return nil, fmt.Errorf("unknown cohort %q", name)
	}
	if len(cohort.Columns.Labels) == 0 {
		return nil, fmt.Errorf("cohort %s: no label columns configured", name)
	}

	run, err := p.ledger.StartRun("resolve", name)
	if err != nil {
		return nil, err
	}
	defer debug.Timing(p.cfg.Debug, "resolve "+name)()

	t, err := table.ReadCSV(cohort.DedupedOutput)
	if err != nil {
		return nil, fmt.Errorf("cohort %s: %w (run dedupe first)", name, err)
	}

	labelIdx := make([]int, len(cohort.Columns.Labels))
	for i, header := range cohort.Columns.Labels {
		labelIdx[i] = t.ColumnIndex(header)
		if labelIdx[i] < 0 {
			return nil, fmt.Errorf("cohort %s: label column %q not found in %s",
				name, header, cohort.DedupedOutput)
		}
	}
	femaleIdx := t.ColumnIndex(cohort.Columns.Female)
	if femaleIdx < 0 && cohort.Columns.Female != "" {
		log.Printf("WARNING: cohort %s has no %q column; own-gender shares stay empty",
			name, cohort.Columns.Female)
	}

	store, err := crosswalk.Load(p.cfg.Crosswalk.Store)
	if err != nil {
		return nil, err
	}
	ref, err := p.BuildReference()
	if err != nil {
		return nil, err
	}

	requests := make([]crosswalk.Request, 0, len(t.Rows))
	for i := range t.Rows {
		req := crosswalk.Request{Row: i}
		for slot, idx := range labelIdx {
			req.Labels[slot] = t.Get(i, idx)
		}
		if femaleIdx >= 0 {
			req.Female = table.ParseBool(t.Get(i, femaleIdx))
		}
		requests = append(requests, req)
	}

	resolver := crosswalk.NewResolver(store, ref, p.TierRules())
	outcomes, report := resolver.Resolve(requests)

	appendSlotColumns(t, outcomes, len(labelIdx))

	if err := store.Save(p.cfg.Crosswalk.Store); err != nil {
		return nil, err
	}
	if err := t.WriteCSV(cohort.ResolvedOutput); err != nil {
		return nil, fmt.Errorf("cohort %s: %w", name, err)
	}

	for _, tc := range report.TypoCandidates {
		log.Printf("WARNING: crosswalk label %q maps to code %d which is not in the reference table",
			tc.RawLabel, tc.Code)
	}

	run.Processed = report.Responses
	run.Kept = report.ResolvedSlots
	run.Staged = len(report.Staged)
	run.Advisories = len(report.TypoCandidates)
	if err := p.ledger.CompleteRun(run); err != nil {
		log.Printf("WARNING: failed to record run: %v", err)
	}

	return &ResolveSummary{Cohort: name, Report: report}, nil
}

// appendSlotColumns writes the per-slot resolution results into new columns.
func appendSlotColumns(t *table.Table, outcomes []crosswalk.Outcome, slots int) {
	base := len(t.Columns)
	for slot := 1; slot <= slots; slot++ {
		for _, col := range slotColumns {
			t.AddColumn(fmt.Sprintf("%s_%d", col, slot), "")
		}
	}

	for _, out := range outcomes {
		for slot := 0; slot < slots; slot++ {
			s := out.Slots[slot]
			cells := []string{
				table.FormatInt(s.Code),
				s.OfficialName,
				table.FormatFloat(s.MathReq),
				table.FormatFloat(s.LanguageReq),
				table.FormatFloat(s.ForeignLangReq),
				table.FormatFloat(s.ScienceReq),
				s.MathTier,
				table.FormatFloat(s.FemaleShare),
				table.FormatFloat(s.OwnGenderShare),
			}
			offset := base + slot*len(slotColumns)
			for i, cell := range cells {
				t.Rows[out.Row][offset+i] = cell
			}
		}
	}
}

// CompactStore removes exact-duplicate raw labels from the crosswalk store,
// keeping the first occurrence of each, and returns how many rows were
// removed. Duplicates only appear through hand edits of the store file, so
// the file is rewritten only when something was actually removed.
func (p *Pipeline) CompactStore() (int, error) {
	store, err := crosswalk.Load(p.cfg.Crosswalk.Store)
	if err != nil {
		return 0, err
	}

	removed := store.Compact()
	if removed == 0 {
		return 0, nil
	}
	if err := store.Save(p.cfg.Crosswalk.Store); err != nil {
		return 0, err
	}
	return removed, nil
}

// ExportPending writes the labels awaiting manual review to the configured
// export file and returns how many there are.
func (p *Pipeline) ExportPending() (int, error) {
	store, err := crosswalk.Load(p.cfg.Crosswalk.Store)
	if err != nil {
		return 0, err
	}

	pending := store.Pending()
	out := table.New("raw_label", "cleaned")
	for _, label := range pending {
		out.Rows = append(out.Rows, []string{label, "false"})
	}
	if err := out.WriteCSV(p.cfg.Crosswalk.PendingExport); err != nil {
		return 0, err
	}

	return len(pending), nil
}
