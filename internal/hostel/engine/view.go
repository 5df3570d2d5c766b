package engine

import (
	"cloud.google.com/go/civil"

	"github.com/guard-e/hostel/internal/hostel/card"
	"github.com/guard-e/hostel/internal/hostel/gateway"
	"github.com/guard-e/hostel/internal/hostel/room"
	"github.com/guard-e/hostel/internal/hostel/types"
)

func isoDate(d *civil.Date) string {
	if d == nil {
		return ""
	}
	return d.String()
}

func statusView(v *types.CardView, flag int) {
	v.Status = flag
	v.StatusLabel = card.Status(flag).Label()
}

func viewFromOutcome(p gateway.ProcedureParams, out gateway.ProcedureOutcome) types.CardView {
	v := types.CardView{
		CardID:     out.CardID,
		PeopleID:   out.PeopleID,
		ProfileID:  out.ProfileID,
		CardNumber: p.CardNumber,
		ValidFrom:  isoDate(out.ValidFrom),
		ValidUntil: isoDate(out.ValidTo),
		Comments:   p.Comments,
	}
	if p.Room > 0 {
		v.Room = room.Label(p.Room)
	}
	actived := 0
	if out.Actived != nil {
		actived = *out.Actived
	}
	statusView(&v, actived)
	return v
}

func viewFromRow(r gateway.CardRow) types.CardView {
	id := r.CardID
	v := types.CardView{
		CardID:     &id,
		CardNumber: r.CardNumber,
		Room:       r.RoomLabel,
		ValidFrom:  isoDate(r.OpenDate),
		ValidUntil: isoDate(r.CloseDate),
		Comments:   r.Comments,
	}
	statusView(&v, r.Active)
	return v
}
