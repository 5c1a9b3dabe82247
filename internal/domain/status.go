package domain

import "fmt"

// transitions lists the moves a check may make while the process runs.
// The startup reset (anything unfinished -> pending) bypasses this table.
var transitions = map[Status][]Status{
	StatusPending:    {StatusQueued},
	StatusQueued:     {StatusPending, StatusInProgress},
	StatusInProgress: {StatusSuccess, StatusFailed},
}

func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusQueued, StatusInProgress, StatusSuccess, StatusFailed:
		return true
	}
	return false
}

// Terminal reports whether no further transition happens without a resubmission.
func (s Status) Terminal() bool {
	return s == StatusSuccess || s == StatusFailed
}

func CanTransition(from, to Status) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

func ParseStatus(raw string) (Status, error) {
	s := Status(raw)
	if !s.Valid() {
		return "", fmt.Errorf("unknown status %q", raw)
	}
	return s, nil
}
