package room

import "github.com/park285/cheese-online-chess/internal/roomstore"

var (
	ErrInvalidArgs     = errf("invalid arguments")
	ErrRoomNotFound    = errf("room not found")
	ErrRoomNotJoinable = errf("room is not joinable")
	// ErrMoveConflict means the room moved on (another ply, turn or status)
	// between the caller's snapshot and its write.
	ErrMoveConflict     = errf("room changed before the write")
	ErrCodeExhausted    = errf("failed to allocate room code")
	ErrStoreUnavailable = roomstore.ErrUnavailable
)

type staticErr string

func (e staticErr) Error() string { return string(e) }
func errf(s string) error        { return staticErr(s) }
