package survey

// Group is a set of records sharing one identity key value. Members holds
// positions into the records slice the grouping ran over. Groups only exist
// for genuine collisions: singletons are never grouped.
type Group struct {
	Type    KeyType
	Value   string
	ID      int
	Members []int
}

// GroupDuplicates partitions records into duplicate groups by exact match
// on the given key type.
//
// Records with an empty key are never grouped, no matter how many of them
// there are: a shared missing email is not a shared identity. Group ids are
// dense integers assigned in order of each group's first appearance, so the
// numbering is deterministic for a stable input order.
func GroupDuplicates(records []Record, kt KeyType) []Group {
	byKey := make(map[string][]int)
	var order []string

	for i, rec := range records {
		key := rec.Key(kt)
		if key == "" {
			continue
		}
		if _, seen := byKey[key]; !seen {
			order = append(order, key)
		}
		byKey[key] = append(byKey[key], i)
	}

	var groups []Group
	for _, key := range order {
		members := byKey[key]
		if len(members) < 2 {
			continue
		}
		groups = append(groups, Group{
			Type:    kt,
			Value:   key,
			ID:      len(groups),
			Members: members,
		})
	}

	return groups
}
