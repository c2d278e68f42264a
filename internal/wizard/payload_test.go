package wizard

import (
	"strings"
	"testing"
	"time"
)

func TestPayloadRoundTrip(t *testing.T) {
	ts := time.UnixMilli(1756100000000)

	payloads := []Payload{
		RegisterDate{Band: "The Kinks & Co", Date: "2026-08-26", StartedAt: ts},
		RegisterTime{Band: "Band=1", Date: "2026-08-26", Slot: "09:00-12:00", StartedAt: ts},
		ShowMore{Page: 2, Generation: 1756100000123},
		EditName{BookingID: 42, IssuedAt: ts},
		EditSlot{BookingID: 7, IssuedAt: ts},
		EditDate{Date: "2026-08-27", IssuedAt: ts},
		EditTime{Slot: "18:00-22:00", IssuedAt: ts},
		ViewAllDate{Date: "2026-08-29", IssuedAt: ts},
		DeleteStart{BookingID: 9, IssuedAt: ts},
		DeleteConfirm{BookingID: 9, IssuedAt: ts},
		DeleteCancel{IssuedAt: ts},
		Noop{},
	}
	for _, p := range payloads {
		wire := Encode(p)
		got, err := ParsePayload(wire)
		if err != nil {
			t.Fatalf("%s: parse %q: %v", p.action(), wire, err)
		}
		if got != p {
			t.Errorf("%s: round trip %#v -> %#v", p.action(), p, got)
		}
	}
}

func TestParsePayloadRejectsGarbage(t *testing.T) {
	cases := []struct {
		name string
		data string
	}{
		{"empty", ""},
		{"unknown action", "a=launch&ts=5"},
		{"invalid query encoding", "a=del;id=1"},
		{"missing timestamp", "a=del&id=1"},
		{"non-numeric timestamp", "a=del&id=1&ts=soon"},
		{"non-numeric booking id", "a=delok&id=first&ts=5"},
		{"regdate without band", "a=regdate&d=2026-08-26&ts=5"},
		{"regtime without slot", "a=regtime&band=X&d=2026-08-26&ts=5"},
		{"edate without date", "a=edate&ts=5"},
		{"more without page", "a=more&gen=5"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := ParsePayload(tc.data); err == nil {
				t.Errorf("ParsePayload(%q) accepted garbage", tc.data)
			}
		})
	}
}

func TestEncodeEscapesReservedCharacters(t *testing.T) {
	wire := Encode(RegisterDate{Band: "A&B=C", Date: "2026-08-26", StartedAt: time.UnixMilli(5)})
	if strings.Contains(wire, "A&B") {
		t.Errorf("band name not escaped in %q", wire)
	}
	p, err := ParsePayload(wire)
	if err != nil {
		t.Fatal(err)
	}
	if p.(RegisterDate).Band != "A&B=C" {
		t.Errorf("band = %q", p.(RegisterDate).Band)
	}
}
