package survey

// Policy selects which group member survives duplicate resolution.
type Policy int

const (
	// KeepEarliest retains the first submission (students flow).
	KeepEarliest Policy = iota
	// KeepLatest retains the most recent submission (parents flow).
	KeepLatest
)

// ParsePolicy maps the config spelling to a Policy.
func ParsePolicy(s string) (Policy, bool) {
	switch s {
	case "first":
		return KeepEarliest, true
	case "last":
		return KeepLatest, true
	}
	return KeepEarliest, false
}

// Result is the outcome of one resolution pass over a cohort.
type Result struct {
	Survivors  []Record
	Eliminated []Record

	// ResponseIDGroups, EmailGroups, NameGroups count the duplicate
	// groups found per key type.
	ResponseIDGroups int
	EmailGroups      int
	NameGroups       int

	// SkippedPasses names key types skipped in degraded mode.
	SkippedPasses []KeyType
}

// Options controls which identity passes run. A pass is skipped when its
// source columns are missing from the input (degraded mode, warned by the
// caller) — resolution then proceeds with the remaining passes.
type Options struct {
	SkipEmail    bool
	SkipNamePair bool
}

// Resolve performs duplicate resolution over the cohort.
//
// ResponseId collisions are handled first and fully removed before the
// email and name passes are computed: a duplicated ResponseId is a data
// entry error, not a repeat respondent, and must not distort the identity
// groups. The email and name passes then run on the survivors; a record
// that loses in either group is eliminated, even if it is the best member
// of the other. Records without a usable timestamp never beat one with a
// known timestamp; ties on identical timestamps fall back to original
// input order.
func Resolve(records []Record, policy Policy, opts Options) Result {
	var res Result

	// Pass 1: exact ResponseId duplicates.
	idGroups := GroupDuplicates(records, KeyResponseID)
	res.ResponseIDGroups = len(idGroups)

	dropped := make(map[int]bool)
	for _, g := range idGroups {
		best := bestMember(records, g.Members, policy)
		for _, m := range g.Members {
			if m != best {
				dropped[m] = true
			}
		}
	}

	var remaining []Record
	for i, rec := range records {
		if dropped[i] {
			res.Eliminated = append(res.Eliminated, rec)
		} else {
			remaining = append(remaining, rec)
		}
	}

	// Passes 2 and 3: email and name-pair groups over the remaining set.
	// Losers accumulate across both passes before anything is removed, so
	// a record must win every group it belongs to in order to survive.
	loser := make(map[int]bool)

	if opts.SkipEmail {
		res.SkippedPasses = append(res.SkippedPasses, KeyEmail)
	} else {
		emailGroups := GroupDuplicates(remaining, KeyEmail)
		res.EmailGroups = len(emailGroups)
		markLosers(remaining, emailGroups, policy, loser)
	}

	if opts.SkipNamePair {
		res.SkippedPasses = append(res.SkippedPasses, KeyNamePair)
	} else {
		nameGroups := GroupDuplicates(remaining, KeyNamePair)
		res.NameGroups = len(nameGroups)
		markLosers(remaining, nameGroups, policy, loser)
	}

	for i, rec := range remaining {
		if loser[i] {
			res.Eliminated = append(res.Eliminated, rec)
		} else {
			res.Survivors = append(res.Survivors, rec)
		}
	}

	return res
}

func markLosers(records []Record, groups []Group, policy Policy, loser map[int]bool) {
	for _, g := range groups {
		best := bestMember(records, g.Members, policy)
		for _, m := range g.Members {
			if m != best {
				loser[m] = true
			}
		}
	}
}

// bestMember ranks group members by submission timestamp under the policy.
// Unknown timestamps always rank last; remaining ties go to the member with
// the lowest original index.
func bestMember(records []Record, members []int, policy Policy) int {
	best := members[0]
	for _, m := range members[1:] {
		if beats(records[m], records[best], policy) {
			best = m
		}
	}
	return best
}

func beats(a, b Record, policy Policy) bool {
	if a.HasTime != b.HasTime {
		return a.HasTime
	}
	if a.HasTime && !a.SubmittedAt.Equal(b.SubmittedAt) {
		if policy == KeepLatest {
			return a.SubmittedAt.After(b.SubmittedAt)
		}
		return a.SubmittedAt.Before(b.SubmittedAt)
	}
	return a.Index < b.Index
}
