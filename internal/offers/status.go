package offers

type Status string

const (
	StatusDraft     Status = "draft"
	StatusActive    Status = "active"
	StatusAccepted  Status = "accepted"
	StatusCompleted Status = "completed"
	StatusCancelled Status = "cancelled"
)

var validNext = map[Status]map[Status]bool{
	StatusDraft:     {StatusActive: true, StatusCancelled: true},
	StatusActive:    {StatusAccepted: true, StatusCancelled: true, StatusDraft: true},
	StatusAccepted:  {StatusCompleted: true, StatusCancelled: true, StatusActive: true},
	StatusCompleted: {},
	StatusCancelled: {},
}

func (s Status) Valid() bool {
	_, ok := validNext[s]
	return ok
}

func (s Status) IsTerminal() bool {
	return s == StatusCompleted || s == StatusCancelled
}

func CanTransition(from, to Status) bool {
	return validNext[from][to]
}

// CheckTransition validates the edge and returns the typed error a caller
// can surface directly.
func CheckTransition(from, to Status) error {
	if from == to {
		return &NoOpTransitionError{Status: from}
	}
	if !CanTransition(from, to) {
		return &InvalidTransitionError{From: from, To: to}
	}
	return nil
}

// requiresAvailabilityGate: edges that must not commit while any product item
// exceeds live availability.
func requiresAvailabilityGate(to Status) bool {
	return to == StatusAccepted || to == StatusCompleted
}
