// Package card holds the in-memory representation of an access pass and the
// structural rules a pass must satisfy before it is sent to the store.
package card

import (
	"encoding/json"
	"fmt"

	"cloud.google.com/go/civil"

	"github.com/guard-e/hostel/internal/hostel/room"
)

// Status is the stored activation flag of a card.
type Status int

const (
	StatusInactive Status = 0
	StatusActive   Status = 1
)

// Valid reports whether s is one of the two stored values.
func (s Status) Valid() bool {
	return s == StatusInactive || s == StatusActive
}

// Label is the human-readable form shown to operators.
func (s Status) Label() string {
	switch s {
	case StatusActive:
		return "active"
	case StatusInactive:
		return "inactive"
	default:
		return fmt.Sprintf("unknown(%d)", int(s))
	}
}

// Card is one physical pass. Pointer fields are optional; CardID, PeopleID and
// ProfileID are assigned by the store and stay nil for a card that has not
// been created yet.
type Card struct {
	CardID     *int64      `json:"card_id"`
	PeopleID   *int64      `json:"people_id"`
	ProfileID  *int64      `json:"profile_id"`
	Room       int         `json:"room"`
	CardNumber int64       `json:"card_number"`
	ValidFrom  *civil.Date `json:"valid_from"`
	ValidUntil *civil.Date `json:"valid_until"`
	Status     Status      `json:"status"`
	Comments   *string     `json:"comments"`
}

// New returns an active card with the given validity window.
func New(roomID int, number int64, from, until civil.Date) Card {
	return Card{
		Room:       roomID,
		CardNumber: number,
		ValidFrom:  &from,
		ValidUntil: &until,
		Status:     StatusActive,
	}
}

// Floor and RoomNumber decompose the room identifier. They return zero values
// when the identifier is invalid.
func (c Card) Floor() int {
	f, _, _ := room.Decode(c.Room)
	return f
}

func (c Card) RoomNumber() int {
	_, n, _ := room.Decode(c.Room)
	return n
}

// WithStoreIDs returns a copy of c carrying the identifiers the store assigned
// on creation.
func (c Card) WithStoreIDs(cardID, peopleID, profileID *int64) Card {
	c.CardID = cardID
	c.PeopleID = peopleID
	c.ProfileID = profileID
	return c
}

func (c Card) String() string {
	id := "nil"
	if c.CardID != nil {
		id = fmt.Sprintf("%d", *c.CardID)
	}
	return fmt.Sprintf("Card(card_id=%s, card_number=%d, room=%d, status=%d)", id, c.CardNumber, c.Room, c.Status)
}

// Marshal encodes c as JSON with ISO calendar dates.
func Marshal(c Card) ([]byte, error) {
	return json.Marshal(c)
}

// Unmarshal decodes a card produced by Marshal. An absent field decodes to the
// same value as an explicit null.
func Unmarshal(data []byte) (Card, error) {
	var c Card
	if err := json.Unmarshal(data, &c); err != nil {
		return Card{}, fmt.Errorf("decoding card: %w", err)
	}
	return c, nil
}

// UnmarshalJSON applies the status default before decoding so that a missing
// "status" and "status": null both yield StatusActive.
func (c *Card) UnmarshalJSON(data []byte) error {
	type plain Card
	p := plain{Status: StatusActive}
	if err := json.Unmarshal(data, &p); err != nil {
		return err
	}
	*c = Card(p)
	return nil
}
