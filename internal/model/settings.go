package model

import "time"

// Setting is one key-value row in the runtime settings table, used for
// operator-tunable knobs like rate limit overrides that shouldn't require a
// restart to change.
type Setting struct {
	Key       string
	Value     string
	UpdatedAt time.Time
}
