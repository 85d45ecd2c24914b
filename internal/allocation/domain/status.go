package domain

type Status string

const (
	StatusReserved Status = "reserved"
	StatusCaptured Status = "captured"
	StatusReleased Status = "released"
)

// ActiveStatuses hold budget and block a second reservation for the same triple.
var ActiveStatuses = []Status{StatusReserved, StatusCaptured}

func (s Status) Valid() bool {
	switch s {
	case StatusReserved, StatusCaptured, StatusReleased:
		return true
	default:
		return false
	}
}

// Terminal statuses accept no further transitions.
func (s Status) Terminal() bool {
	return s == StatusCaptured || s == StatusReleased
}

// Transition validates from -> to. Only reserved may move, to captured or released.
func Transition(from, to Status) error {
	if from != StatusReserved {
		return ErrInvalidTransition
	}
	switch to {
	case StatusCaptured, StatusReleased:
		return nil
	default:
		return ErrInvalidTransition
	}
}
