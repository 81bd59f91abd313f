package repositories

import "fmt"

// ErrInvalidRun occurs when a run cannot be stored as given
type ErrInvalidRun struct {
	ID     string
	Reason string
}

func (e ErrInvalidRun) Error() string {
	return fmt.Sprintf("invalid extraction run %q: %s", e.ID, e.Reason)
}
