package session

import "errors"

// ErrNoMeeting is reported by the load step when finalization finds no record.
var ErrNoMeeting = errors.New("no meeting record")
