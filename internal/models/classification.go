package models

// Category is the classifier's verdict for a raw item
type Category string

const (
	CategoryNoise         Category = "noise"
	CategoryAutomated     Category = "automated"
	CategoryInformational Category = "informational"
	CategoryActionable    Category = "actionable"
)

// Categories lists every category in dashboard order
var Categories = []Category{
	CategoryNoise,
	CategoryAutomated,
	CategoryInformational,
	CategoryActionable,
}

// IsValid reports whether c is a known category
func (c Category) IsValid() bool {
	switch c {
	case CategoryNoise, CategoryAutomated, CategoryInformational, CategoryActionable:
		return true
	default:
		return false
	}
}

// Destination returns the stage a classified item is routed to
func (c Category) Destination() Stage {
	if c == CategoryActionable {
		return StagePendingApproval
	}
	return StageDone
}

// Classification is the structured result of classifying one raw item
type Classification struct {
	Category          Category `json:"classification" validate:"required,category"`
	Description       string   `json:"description"`
	RecommendedAction string   `json:"recommended_action"`
	// Fallback is set when the result is the safe default rather than the Reasoner's answer
	Fallback bool `json:"-"`
}

// Tally counts classifications produced by one pass
type Tally map[Category]int

// NewTally returns a tally with every category at zero
func NewTally() Tally {
	t := make(Tally, len(Categories))
	for _, c := range Categories {
		t[c] = 0
	}
	return t
}

// Total sums all categories
func (t Tally) Total() int {
	n := 0
	for _, v := range t {
		n += v
	}
	return n
}
