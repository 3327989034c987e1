package research

import "github.com/google/uuid"

// newEventID mints a fresh event id for Parts that don't need a stable id
// across emissions (everything except data-usage).
func newEventID() string {
	return uuid.NewString()
}
