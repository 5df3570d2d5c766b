// Package outcome translates the legacy card procedure's numeric result code
// into a typed result.
package outcome

import "fmt"

// Kind classifies a result code.
type Kind int

const (
	Created Kind = iota
	Updated
	Duplicate
	NotFound
	Unknown
)

func (k Kind) String() string {
	switch k {
	case Created:
		return "created"
	case Updated:
		return "updated"
	case Duplicate:
		return "duplicate"
	case NotFound:
		return "not_found"
	default:
		return "unknown"
	}
}

// Raw result codes returned by the card procedure.
const (
	CodeCreated   = 0
	CodeUpdated   = 1
	CodeDuplicate = 2
	CodeNotFound  = 3
)

// Outcome is a translated result code. Code keeps the raw value so an Unknown
// outcome can be logged.
type Outcome struct {
	Kind Kind
	Code int
}

// Translate is total: every integer maps to an Outcome.
func Translate(code int) Outcome {
	switch code {
	case CodeCreated:
		return Outcome{Kind: Created, Code: code}
	case CodeUpdated:
		return Outcome{Kind: Updated, Code: code}
	case CodeDuplicate:
		return Outcome{Kind: Duplicate, Code: code}
	case CodeNotFound:
		return Outcome{Kind: NotFound, Code: code}
	default:
		return Outcome{Kind: Unknown, Code: code}
	}
}

// Succeeded reports whether the store accepted the command.
func (o Outcome) Succeeded() bool {
	return o.Kind == Created || o.Kind == Updated
}

// Applied reports whether the store changed anything. Duplicate and NotFound
// leave the store untouched.
func (o Outcome) Applied() bool {
	return o.Succeeded()
}

// Status is the message shown to staff.
func (o Outcome) Status() string {
	switch o.Kind {
	case Created:
		return "Card created"
	case Updated:
		return "Card updated"
	case Duplicate:
		return "Card with this number already exists"
	case NotFound:
		return "Card not found"
	default:
		return fmt.Sprintf("Unexpected store result (code %d)", o.Code)
	}
}

func (o Outcome) String() string {
	if o.Kind == Unknown {
		return fmt.Sprintf("unknown(%d)", o.Code)
	}
	return o.Kind.String()
}
