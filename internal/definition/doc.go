// Package definition loads agent definitions from the agents file.
//
// # Overview
//
// Agent definitions describe who may log in as an agent and which call
// handling defaults apply to them. They are loaded from a TOML file into an
// immutable Snapshot. A reload always produces a brand new Snapshot; nothing
// in this package mutates a Snapshot after Load returns it.
//
// # File Format
//
//	[defaults]
//	musiconhold = "queue-hold"
//	maxlogintries = 5
//
//	[[agent]]
//	id = "1001"
//	fullname = "Ada Lovelace"
//	password = "$2a$10$..."     # bcrypt hash or plain text
//	group = "1,3-5"
//	wrapuptime = 2000
//
// Keys set in [defaults] apply to every [[agent]] that does not set them.
// Keys set nowhere fall back to the built-in defaults:
//
//	maxlogintries    3
//	autologoff       0        # seconds, 0 disables
//	ackcall          false
//	acceptdtmf       "#"
//	endcall          true
//	enddtmf          "*"
//	wrapuptime       0        # milliseconds
//	musiconhold      "default"
//	group            ""       # comma separated numbers or ranges, 0-63
//	recordagentcalls false
//	recordformat     "wav"
//	savecallsin      ""       # normalized to start and end with "/"
//	custom_beep      "beep"
//
// # Errors
//
// A snapshot is all-or-nothing. Load fails with ErrDuplicateID when two
// [[agent]] tables share an id, with a *FieldError (matching ErrInvalidField)
// when a value is out of range or a key is unknown, and with ErrMalformed when
// the file is not valid TOML. Callers keep their previous snapshot on error.
package definition
