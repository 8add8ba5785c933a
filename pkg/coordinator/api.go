// Package coordinator drives searches and installs from the UI goroutine.
//
// Background work runs on two loops. Its results come back as tea messages
// through a Sender and are applied in Update, so every piece of coordinator
// state is read and written by one goroutine only. Install progress is not
// pushed: the coordinator polls a progress.Channel on a fixed cadence.
package coordinator

import (
	"errors"
	"pix/pkg/discovery"
	"pix/pkg/installer"
	"pix/pkg/operation"

	tea "github.com/charmbracelet/bubbletea"
)

var (
	// ErrEmptyQuery is returned by StartSearch for a blank query.
	ErrEmptyQuery = discovery.ErrEmptyQuery
	// ErrSearchBusy is returned by StartSearch while a search is running.
	ErrSearchBusy = errors.New("a search is already running")
	// ErrInstallActive is returned by ResetLinks while images are being saved.
	ErrInstallActive = errors.New("cannot reset links while saving")
	// ErrClosed is returned after Close.
	ErrClosed = errors.New("coordinator closed")
)

// User-visible status lines.
const (
	StatusIdle      = "Operation status"
	StatusSearching = "Searching..."
	StatusSaving    = "Saving is in progress..."
	StatusCancelled = "The operation was canceled"
	StatusSaved     = "Images have been saved successfully"
)

// Toggle labels.
const (
	LabelStart  = "Start"
	LabelCancel = "Cancel"
)

// Sender delivers a message to the UI goroutine. *tea.Program satisfies it.
// Send may be called from any goroutine.
type Sender interface {
	Send(msg tea.Msg)
}

// Searcher starts link discovery. *discovery.Discovery satisfies it.
type Searcher interface {
	Start(query string, cb discovery.Callbacks) (*operation.Operation, error)
}

// Installer starts a bulk install. *installer.Installer satisfies it.
type Installer interface {
	Start(req installer.Request, progress installer.ProgressFunc, onDone installer.DoneFunc) (*operation.Operation, error)
}

// Listener is notified of coordinator events. All methods are called on the
// UI goroutine from within Update or the coordinator's own methods.
type Listener interface {
	OnLinkDiscovered(url string)
	OnSearchComplete(found int)
	OnSearchFailed(err error)
	OnInstallProgress(percent int)
	OnInstallComplete()
	OnInstallCancelled()
	OnInstallFailed(err error)
}

// NopListener ignores every event. Embed it to implement only some methods.
type NopListener struct{}

func (NopListener) OnLinkDiscovered(string) {}
func (NopListener) OnSearchComplete(int)    {}
func (NopListener) OnSearchFailed(error)    {}
func (NopListener) OnInstallProgress(int)   {}
func (NopListener) OnInstallComplete()      {}
func (NopListener) OnInstallCancelled()     {}
func (NopListener) OnInstallFailed(error)   {}

// Selection is what the user chose to save. It is copied when an install
// starts and never changed afterwards.
// Immutable
type Selection struct {
	Dir   string
	Count int
	// Tag names the saved files. Empty means the last search query.
	Tag string
}
