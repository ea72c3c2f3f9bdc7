package doc

// Partition splits a set of documents by identifier shape.
type Partition struct {
	// Game is the root document, nil if the set did not contain one.
	Game Document `json:"game,omitempty"`

	// Sheets holds the sheet documents in input order.
	Sheets []Document `json:"sheets"`

	// Deleted lists the identifiers of root or sheet tombstones.
	Deleted []string `json:"deleted,omitempty"`
}

// PartitionDocs classifies docs into root and sheets. Documents of KindOther
// are dropped; tombstones are reported by id only. Sheets is never nil.
//
// If the input holds several root revisions, the last one wins; callers pass
// either a collection listing (unique ids) or a change batch (store order).
func PartitionDocs(docs []Document) Partition {
	p := Partition{Sheets: []Document{}}
	for _, d := range docs {
		kind := Classify(d.ID())
		if kind == KindOther {
			continue
		}
		if d.Deleted() {
			p.Deleted = append(p.Deleted, d.ID())
			continue
		}
		switch kind {
		case KindRoot:
			p.Game = d
		case KindSheet:
			p.Sheets = append(p.Sheets, d)
		}
	}
	return p
}

// SheetIDs returns the identifiers of p.Sheets in order.
func (p Partition) SheetIDs() []string {
	ids := make([]string, len(p.Sheets))
	for i, s := range p.Sheets {
		ids[i] = s.ID()
	}
	return ids
}

// Empty reports whether p carries no root, sheets or deletions.
func (p Partition) Empty() bool {
	return p.Game == nil && len(p.Sheets) == 0 && len(p.Deleted) == 0
}
