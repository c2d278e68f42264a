package wizard

import (
	"fmt"
	"net/url"
	"strconv"
	"time"
)

// Button payloads are the opaque data strings attached to interactive
// controls and echoed back verbatim on press. The wire format is a flat
// query string with an "a" action discriminator; every timestamp-
// sensitive control carries a "ts" field holding the issuing time in
// milliseconds since epoch. Payloads are parsed exactly once, at the
// state machine's entry point, into one variant per action.

// Payload is a decoded button payload.
type Payload interface {
	action() string
}

// RegisterDate is a date choice in the registration flow. It is fully
// self-describing: the band name and the wizard session start travel in
// the payload, not in the session record.
type RegisterDate struct {
	Band      string
	Date      string // canonical date key, YYYY-MM-DD
	StartedAt time.Time
}

// RegisterTime is a time choice in the registration flow; pressing it
// creates the booking.
type RegisterTime struct {
	Band      string
	Date      string
	Slot      string // time range, HH:MM-HH:MM
	StartedAt time.Time
}

// ShowMore requests the next page of the listing identified by
// Generation (the issuance time of the listing it belongs to).
type ShowMore struct {
	Page       int
	Generation int64 // millis since epoch
}

// EditName starts the band-name edit flow for a booking.
type EditName struct {
	BookingID uint
	IssuedAt  time.Time
}

// EditSlot starts the date/time edit flow for a booking.
type EditSlot struct {
	BookingID uint
	IssuedAt  time.Time
}

// EditDate is a date choice inside the date/time edit flow.
type EditDate struct {
	Date     string
	IssuedAt time.Time
}

// EditTime is a time choice inside the date/time edit flow.
type EditTime struct {
	Slot     string
	IssuedAt time.Time
}

// ViewAllDate is a date choice for the all-bookings day view.
type ViewAllDate struct {
	Date     string
	IssuedAt time.Time
}

// DeleteStart opens the delete confirmation for a booking.
type DeleteStart struct {
	BookingID uint
	IssuedAt  time.Time
}

// DeleteConfirm commits a pending delete.
type DeleteConfirm struct {
	BookingID uint
	IssuedAt  time.Time
}

// DeleteCancel abandons a pending delete.
type DeleteCancel struct {
	IssuedAt time.Time
}

// Noop is the inert placeholder substituted for action buttons during
// the blackout window.
type Noop struct{}

func (RegisterDate) action() string  { return "regdate" }
func (RegisterTime) action() string  { return "regtime" }
func (ShowMore) action() string      { return "more" }
func (EditName) action() string      { return "editname" }
func (EditSlot) action() string      { return "editslot" }
func (EditDate) action() string      { return "edate" }
func (EditTime) action() string      { return "etime" }
func (ViewAllDate) action() string   { return "vadate" }
func (DeleteStart) action() string   { return "del" }
func (DeleteConfirm) action() string { return "delok" }
func (DeleteCancel) action() string  { return "delno" }
func (Noop) action() string          { return "noop" }

// Encode renders a payload as its wire string.
func Encode(p Payload) string {
	v := url.Values{}
	v.Set("a", p.action())
	switch p := p.(type) {
	case RegisterDate:
		v.Set("band", p.Band)
		v.Set("d", p.Date)
		setTS(v, p.StartedAt)
	case RegisterTime:
		v.Set("band", p.Band)
		v.Set("d", p.Date)
		v.Set("t", p.Slot)
		setTS(v, p.StartedAt)
	case ShowMore:
		v.Set("p", strconv.Itoa(p.Page))
		v.Set("gen", strconv.FormatInt(p.Generation, 10))
	case EditName:
		v.Set("id", strconv.FormatUint(uint64(p.BookingID), 10))
		setTS(v, p.IssuedAt)
	case EditSlot:
		v.Set("id", strconv.FormatUint(uint64(p.BookingID), 10))
		setTS(v, p.IssuedAt)
	case EditDate:
		v.Set("d", p.Date)
		setTS(v, p.IssuedAt)
	case EditTime:
		v.Set("t", p.Slot)
		setTS(v, p.IssuedAt)
	case ViewAllDate:
		v.Set("d", p.Date)
		setTS(v, p.IssuedAt)
	case DeleteStart:
		v.Set("id", strconv.FormatUint(uint64(p.BookingID), 10))
		setTS(v, p.IssuedAt)
	case DeleteConfirm:
		v.Set("id", strconv.FormatUint(uint64(p.BookingID), 10))
		setTS(v, p.IssuedAt)
	case DeleteCancel:
		setTS(v, p.IssuedAt)
	case Noop:
	}
	return v.Encode()
}

// ParsePayload decodes a wire string into its payload variant.
func ParsePayload(data string) (Payload, error) {
	v, err := url.ParseQuery(data)
	if err != nil {
		return nil, fmt.Errorf("wizard: parse payload: %w", err)
	}

	switch a := v.Get("a"); a {
	case "regdate":
		ts, err := getTS(v)
		if err != nil {
			return nil, err
		}
		p := RegisterDate{Band: v.Get("band"), Date: v.Get("d"), StartedAt: ts}
		if p.Band == "" || p.Date == "" {
			return nil, fmt.Errorf("wizard: regdate payload missing fields")
		}
		return p, nil
	case "regtime":
		ts, err := getTS(v)
		if err != nil {
			return nil, err
		}
		p := RegisterTime{Band: v.Get("band"), Date: v.Get("d"), Slot: v.Get("t"), StartedAt: ts}
		if p.Band == "" || p.Date == "" || p.Slot == "" {
			return nil, fmt.Errorf("wizard: regtime payload missing fields")
		}
		return p, nil
	case "more":
		page, err := strconv.Atoi(v.Get("p"))
		if err != nil {
			return nil, fmt.Errorf("wizard: more payload page: %w", err)
		}
		gen, err := strconv.ParseInt(v.Get("gen"), 10, 64)
		if err != nil {
			return nil, fmt.Errorf("wizard: more payload generation: %w", err)
		}
		return ShowMore{Page: page, Generation: gen}, nil
	case "editname":
		id, ts, err := getIDTS(v)
		if err != nil {
			return nil, err
		}
		return EditName{BookingID: id, IssuedAt: ts}, nil
	case "editslot":
		id, ts, err := getIDTS(v)
		if err != nil {
			return nil, err
		}
		return EditSlot{BookingID: id, IssuedAt: ts}, nil
	case "edate":
		ts, err := getTS(v)
		if err != nil {
			return nil, err
		}
		if v.Get("d") == "" {
			return nil, fmt.Errorf("wizard: edate payload missing date")
		}
		return EditDate{Date: v.Get("d"), IssuedAt: ts}, nil
	case "etime":
		ts, err := getTS(v)
		if err != nil {
			return nil, err
		}
		if v.Get("t") == "" {
			return nil, fmt.Errorf("wizard: etime payload missing slot")
		}
		return EditTime{Slot: v.Get("t"), IssuedAt: ts}, nil
	case "vadate":
		ts, err := getTS(v)
		if err != nil {
			return nil, err
		}
		if v.Get("d") == "" {
			return nil, fmt.Errorf("wizard: vadate payload missing date")
		}
		return ViewAllDate{Date: v.Get("d"), IssuedAt: ts}, nil
	case "del":
		id, ts, err := getIDTS(v)
		if err != nil {
			return nil, err
		}
		return DeleteStart{BookingID: id, IssuedAt: ts}, nil
	case "delok":
		id, ts, err := getIDTS(v)
		if err != nil {
			return nil, err
		}
		return DeleteConfirm{BookingID: id, IssuedAt: ts}, nil
	case "delno":
		ts, err := getTS(v)
		if err != nil {
			return nil, err
		}
		return DeleteCancel{IssuedAt: ts}, nil
	case "noop":
		return Noop{}, nil
	default:
		return nil, fmt.Errorf("wizard: unknown payload action %q", a)
	}
}

func setTS(v url.Values, t time.Time) {
	v.Set("ts", strconv.FormatInt(t.UnixMilli(), 10))
}

func getTS(v url.Values) (time.Time, error) {
	ms, err := strconv.ParseInt(v.Get("ts"), 10, 64)
	if err != nil {
		return time.Time{}, fmt.Errorf("wizard: payload timestamp: %w", err)
	}
	return time.UnixMilli(ms), nil
}

func getIDTS(v url.Values) (uint, time.Time, error) {
	id, err := strconv.ParseUint(v.Get("id"), 10, 32)
	if err != nil {
		return 0, time.Time{}, fmt.Errorf("wizard: payload booking id: %w", err)
	}
	ts, err := getTS(v)
	if err != nil {
		return 0, time.Time{}, err
	}
	return uint(id), ts, nil
}
