package requests

import "fmt"

type Status string

const (
	StatusPending   Status = "PENDING"
	StatusCertified Status = "CERTIFIED"
	StatusRejected  Status = "REJECTED"
	StatusMinted    Status = "MINTED"
)

// transitions lists the permitted next states. Anything not listed is an invalid transition.
var transitions = map[Status][]Status{
	StatusPending:   {StatusCertified, StatusRejected},
	StatusCertified: {StatusMinted},
	StatusRejected:  {},
	StatusMinted:    {},
}

// ParseStatus returns the Status named by s.
func ParseStatus(s string) (Status, error) {
	st := Status(s)
	if _, ok := transitions[st]; !ok {
		return "", NewValidationError(fmt.Sprintf("unknown status %q", s))
	}
	return st, nil
}

// CanTransition reports whether a request may move from one status to another.
func CanTransition(from, to Status) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// Terminal reports whether no further transition is possible from s.
func (s Status) Terminal() bool {
	next, ok := transitions[s]
	return ok && len(next) == 0
}

// HoldsCertification reports whether a request in this status carries a certification signature.
func (s Status) HoldsCertification() bool {
	return s == StatusCertified || s == StatusMinted
}
