package holiday

import "github.com/messbook/messbook/pkg/meal"

// Classification groups holidays for the policy flags: a government holiday
// can be off while optional holidays stay on, and so on.
type Classification string

const (
	Government Classification = "government"
	Religious  Classification = "religious"
	Optional   Classification = "optional"
)

// Holiday is one calendar entry. The holiday calendar is maintained by an
// external service; this package only reads it.
type Holiday struct {
	Date           meal.Date
	Name           string
	Classification Classification
	Active         bool
}
