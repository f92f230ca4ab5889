// ABOUTME: Read-only status views of agent records for admin listings and item queries
// ABOUTME: Info values are copies taken under the record lock and safe to share

package agent

import (
	"errors"
	"fmt"
	"time"
)

// ErrUnknownItem is returned by Info.Item for an unsupported item name.
var ErrUnknownItem = errors.New("unknown agent item")

// Info is a point-in-time view of a record.
type Info struct {
	ID             string        `json:"id"`
	FullName       string        `json:"name"`
	MusicOnHold    string        `json:"moh_class"`
	HasPassword    bool          `json:"has_password"`
	Groups         string        `json:"groups"`
	State          DeviceState   `json:"state"`
	Session        SessionHandle `json:"session,omitempty"`
	Dead           bool          `json:"dead"`
	Settings       Settings      `json:"settings"`
	LoginStart     time.Time     `json:"login_start,omitzero"`
	CallStart      time.Time     `json:"call_start,omitzero"`
	LastDisconnect time.Time     `json:"last_disconnect,omitzero"`
}

// InCall reports whether a call was in progress when the view was taken.
func (i Info) InCall() bool {
	return !i.CallStart.IsZero()
}

// Item returns a single named attribute:
//
//	status      LOGGEDIN or LOGGEDOUT
//	name        full name
//	mohclass    music on hold class
//	channel     short session handle
//	fullchannel full session handle
//
// The password is never exposed.
func (i Info) Item(name string) (string, error) {
	switch name {
	case "", "status":
		if i.State == StateLoggedIn {
			return "LOGGEDIN", nil
		}
		return "LOGGEDOUT", nil
	case "name":
		return i.FullName, nil
	case "mohclass":
		return i.MusicOnHold, nil
	case "channel":
		s := string(i.Session)
		if len(s) > 8 {
			s = s[:8]
		}
		return s, nil
	case "fullchannel":
		return string(i.Session), nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownItem, name)
	}
}
