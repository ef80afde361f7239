package roomstore

var (
	ErrNotFound    = errf("document not found")
	ErrConflict    = errf("concurrent write conflict")
	ErrUnavailable = errf("store unavailable")
)

type staticErr string

func (e staticErr) Error() string { return string(e) }
func errf(s string) error        { return staticErr(s) }
