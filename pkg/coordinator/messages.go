package coordinator

import (
	"pix/pkg/installer"
	"pix/pkg/operation"
)

// Messages sent from background loops. Gen identifies the run that produced
// them; messages from a superseded run are dropped.

// LinkFoundMsg reports a link that was added to the set.
type LinkFoundMsg struct {
	Gen uint64
	URL string
}

// SearchFinishedMsg reports the end of a search.
type SearchFinishedMsg struct {
	Gen   uint64
	State operation.State
	Err   error
}

// InstallFinishedMsg reports the end of an install run.
type InstallFinishedMsg struct {
	Gen    uint64
	State  operation.State
	Err    error
	Result installer.Result
}

// PollMsg asks the coordinator to drain one progress value.
type PollMsg struct {
	Gen uint64
}
