package wizard

import (
	"time"

	"github.com/anit-serv/greenroom/internal/models"
)

// ControlTTL is how long an issued interactive control stays pressable.
const ControlTTL = 5 * time.Minute

// SessionTTL is the wizard inactivity timeout, anchored at
// session_started_at.
const SessionTTL = 5 * time.Minute

// Verdict is the freshness guard's decision for a pressed control.
type Verdict int

const (
	VerdictValid Verdict = iota
	VerdictExpired
	VerdictSuperseded
)

func (v Verdict) String() string {
	switch v {
	case VerdictValid:
		return "valid"
	case VerdictExpired:
		return "expired"
	case VerdictSuperseded:
		return "superseded"
	default:
		return "unknown"
	}
}

// CheckFreshness decides whether a control issued at the given time is
// still the authoritative one for the session.
//
// Expired is checked first: a control older than ControlTTL is dead
// regardless of the watermark. Superseded catches a control issued at or
// before the watermark — either the user pressed a button on an older
// carousel, or the chat client re-rendered one and the user double-
// tapped. Both are within their own TTL but no longer authoritative.
func CheckFreshness(now, issued time.Time, sess *models.Session) Verdict {
	if now.Sub(issued) >= ControlTTL {
		return VerdictExpired
	}
	if issued.UnixMilli() <= watermark(sess) {
		return VerdictSuperseded
	}
	return VerdictValid
}

// watermark returns the session's button-action watermark, 0 for a user
// with no session row.
func watermark(sess *models.Session) int64 {
	if sess == nil {
		return 0
	}
	return sess.LastButtonActionAt
}

// issueStamp picks the issue time (in millis) for a new control: now,
// bumped just past the watermark when now would not survive the guard.
// The delete-confirm pair needs this so the confirmation cannot be
// judged superseded by the very button that spawned it.
func issueStamp(now time.Time, wm int64) int64 {
	ms := now.UnixMilli()
	if ms <= wm {
		ms = wm + 1
	}
	return ms
}

// sessionTimedOut reports whether the wizard step anchored at
// session_started_at has exceeded SessionTTL.
func sessionTimedOut(now time.Time, sess *models.Session) bool {
	if sess == nil || sess.SessionStartedAt == nil {
		return false
	}
	return now.Sub(*sess.SessionStartedAt) >= SessionTTL
}

// choicesFresh reports whether the session still holds a currently-
// offered, unexpired choice set that can be re-displayed after a stale
// press.
func choicesFresh(now time.Time, sess *models.Session) bool {
	if sess == nil || sess.OfferedChoices == "" || sess.OfferedChoicesIssuedAt == nil {
		return false
	}
	return now.Sub(*sess.OfferedChoicesIssuedAt) < ControlTTL
}
