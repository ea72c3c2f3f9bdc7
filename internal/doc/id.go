package doc

import "github.com/google/uuid"

// RootID is the identifier of the singleton game document.
const RootID = "game"

// Kind classifies a document by the shape of its identifier.
type Kind int

const (
	// KindOther is any identifier that is neither the root nor a sheet.
	KindOther Kind = iota
	// KindRoot is the "game" document.
	KindRoot
	// KindSheet is a document whose identifier is a UUID.
	KindSheet
)

func (k Kind) String() string {
	switch k {
	case KindRoot:
		return "root"
	case KindSheet:
		return "sheet"
	default:
		return "other"
	}
}

// Classify returns the Kind of id.
func Classify(id string) Kind {
	switch {
	case id == RootID:
		return KindRoot
	case IsSheetID(id):
		return KindSheet
	default:
		return KindOther
	}
}

// IsSheetID reports whether id is a canonical hyphenated UUID
// (xxxxxxxx-xxxx-xxxx-xxxx-xxxxxxxxxxxx). The urn and brace forms accepted
// by uuid.Parse are rejected.
func IsSheetID(id string) bool {
	if len(id) != 36 {
		return false
	}
	_, err := uuid.Parse(id)
	return err == nil
}

// NewSheetID returns a fresh time-ordered UUIDv7 sheet identifier.
func NewSheetID() string {
	return uuid.Must(uuid.NewV7()).String()
}
