package types

// CardView is the public form of a card returned to front ends. Dates are ISO
// calendar dates and Status carries a label next to the raw flag.
type CardView struct {
	CardID      *int64 `json:"card_id,omitempty"`
	PeopleID    *int64 `json:"people_id,omitempty"`
	ProfileID   *int64 `json:"profile_id,omitempty"`
	CardNumber  int64  `json:"card_number"`
	Room        string `json:"room,omitempty"`
	ValidFrom   string `json:"valid_from,omitempty"`
	ValidUntil  string `json:"valid_until,omitempty"`
	Status      int    `json:"status"`
	StatusLabel string `json:"status_label"`
	Comments    string `json:"comments,omitempty"`
}
