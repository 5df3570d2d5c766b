// Package room encodes and decodes the composite room identifier stored on a
// card. An identifier is floor*100 + number, so 401 is floor 4, room 01.
package room

import (
	"errors"
	"fmt"
	"math"
	"strconv"
)

// ErrInvalidIdentifier is returned when an identifier does not decompose into
// a positive floor and a positive room number.
var ErrInvalidIdentifier = errors.New("invalid room identifier")

const roomsPerFloor = 100

// MaxID is the largest identifier the card store column can hold.
const MaxID = math.MaxInt32

// Encode builds the composite identifier for floor and number.
func Encode(floor, number int) (int, error) {
	if floor <= 0 || number <= 0 || number >= roomsPerFloor || floor > (MaxID-number)/roomsPerFloor {
		return 0, fmt.Errorf("%w: floor=%d room=%d", ErrInvalidIdentifier, floor, number)
	}
	return floor*roomsPerFloor + number, nil
}

// Decode splits id into (floor, number). Any id in 1..99 has floor 0 and
// therefore fails, as does every non-positive id and anything above MaxID.
func Decode(id int) (floor, number int, err error) {
	if id <= 0 || id > MaxID {
		return 0, 0, fmt.Errorf("%w: %d", ErrInvalidIdentifier, id)
	}
	floor, number = id/roomsPerFloor, id%roomsPerFloor
	if floor <= 0 || number <= 0 {
		return 0, 0, fmt.Errorf("%w: %d", ErrInvalidIdentifier, id)
	}
	return floor, number, nil
}

// Valid reports whether id decodes.
func Valid(id int) bool {
	_, _, err := Decode(id)
	return err == nil
}

// Label renders the identifier the way it is written on the door ("401").
func Label(id int) string {
	return strconv.Itoa(id)
}

// ParseLabel is the inverse of Label. It fails for labels that are not a
// decodable identifier.
func ParseLabel(label string) (int, error) {
	id, err := strconv.Atoi(label)
	if err != nil {
		return 0, fmt.Errorf("%w: %q", ErrInvalidIdentifier, label)
	}
	if !Valid(id) {
		return 0, fmt.Errorf("%w: %q", ErrInvalidIdentifier, label)
	}
	return id, nil
}
