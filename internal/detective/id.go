package detective

import "github.com/google/uuid"

// NewID returns a random identifier for a new entity or ledger row.
func NewID() string {
	return uuid.NewString()
}
