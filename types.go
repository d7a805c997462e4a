package cbgroup

import (
	"fmt"
	"strconv"
)

// GroupType is the concurrency contract an executor enforces for a group.
type GroupType int

const (
	// At most one callback of the group runs at any instant.
	MutuallyExclusive GroupType = iota
	// Callbacks of the group may run concurrently.
	Reentrant
)

func (t GroupType) String() string {
	switch t {
	case MutuallyExclusive:
		return "mutually_exclusive"
	case Reentrant:
		return "reentrant"
	default:
		return fmt.Sprintf("GroupType(%d)", int(t))
	}
}

func (t GroupType) MarshalText() ([]byte, error) {
	switch t {
	case MutuallyExclusive, Reentrant:
		return []byte(t.String()), nil
	default:
		return nil, fmt.Errorf("%w: %d", ErrUnknownGroupType, int(t))
	}
}

func (t *GroupType) UnmarshalText(text []byte) error {
	switch string(text) {
	case "mutually_exclusive", "":
		*t = MutuallyExclusive
	case "reentrant":
		*t = Reentrant
	default:
		return fmt.Errorf("%w: %q", ErrUnknownGroupType, text)
	}
	return nil
}

// RealTimeClass is a priority tier handed to the executor. The group only
// stores it; executors dispatch higher classes first.
type RealTimeClass int

const (
	RealTimeNone RealTimeClass = iota
	RealTimeNonCritical
	RealTimeThreadedCritical
	RealTimeCritical
)

var realTimeClassNames = map[RealTimeClass]string{
	RealTimeNone:             "none",
	RealTimeNonCritical:      "non_critical",
	RealTimeThreadedCritical: "threaded_critical",
	RealTimeCritical:         "critical",
}

func (c RealTimeClass) String() string {
	if name, ok := realTimeClassNames[c]; ok {
		return name
	}
	return strconv.Itoa(int(c))
}

func (c RealTimeClass) MarshalText() ([]byte, error) {
	return []byte(c.String()), nil
}

// UnmarshalText accepts a class name or any decimal integer.
func (c *RealTimeClass) UnmarshalText(text []byte) error {
	if len(text) == 0 {
		*c = RealTimeNone
		return nil
	}

	for class, name := range realTimeClassNames {
		if name == string(text) {
			*c = class
			return nil
		}
	}

	n, err := strconv.Atoi(string(text))
	if err != nil {
		return fmt.Errorf("%w: %q", ErrUnknownRealTimeClass, text)
	}

	*c = RealTimeClass(n)
	return nil
}
