package meal

import "fmt"

// Category identifies one of the two billable meals of a day.
// Balances, manual records, and deductions are always kept per category.
type Category string

const (
	Lunch  Category = "lunch"
	Dinner Category = "dinner"
)

// RuleCategory is the category selector used by override rules. Unlike
// Category it allows "both", which makes a rule apply to lunch and dinner.
type RuleCategory string

const (
	RuleLunch  RuleCategory = "lunch"
	RuleDinner RuleCategory = "dinner"
	RuleBoth   RuleCategory = "both"
)

func (c Category) Valid() bool {
	return c == Lunch || c == Dinner
}

func (c RuleCategory) Valid() bool {
	return c == RuleLunch || c == RuleDinner || c == RuleBoth
}

// Covers reports whether a rule with this category applies to the given meal.
func (c RuleCategory) Covers(category Category) bool {
	if c == RuleBoth {
		return true
	}
	return string(c) == string(category)
}

func ParseCategory(s string) (Category, error) {
	c := Category(s)
	if !c.Valid() {
		return "", fmt.Errorf("unknown meal category: %q", s)
	}
	return c, nil
}
