package domain

import (
	"fmt"
	"strings"

	"github.com/pkg/errors"
)

// Priority orders admission of jobs and tasks; URGENT is the highest.
type Priority int

const (
	IDLE Priority = iota
	LOW
	HIGH
	URGENT
)

var priorityNames = [...]string{IDLE: "IDLE", LOW: "LOW", HIGH: "HIGH", URGENT: "URGENT"}

func (p Priority) String() string {
	if p < IDLE || p > URGENT {
		return fmt.Sprintf("Priority(%d)", int(p))
	}
	return priorityNames[p]
}

func ParsePriority(v string) (Priority, error) {
	for i, name := range priorityNames {
		if strings.EqualFold(name, strings.TrimSpace(v)) {
			return Priority(i), nil
		}
	}
	return IDLE, errors.Errorf("unknown priority %q", v)
}

func (p Priority) MarshalText() ([]byte, error) {
	if p < IDLE || p > URGENT {
		return nil, errors.Errorf("cannot marshal invalid priority %d", int(p))
	}
	return []byte(p.String()), nil
}

func (p *Priority) UnmarshalText(text []byte) error {
	pr, err := ParsePriority(string(text))
	if err != nil {
		return err
	}
	*p = pr
	return nil
}
