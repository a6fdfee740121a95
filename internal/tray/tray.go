// Package tray provides a system tray menu for starting a photo capture.
package tray

import (
	"sync"

	"github.com/getlantern/systray"
)

const (
	titleTakePhoto = "Take Photo"
	titleCancel    = "Cancel"
)

// Tray represents the system tray application.
type Tray struct {
	onCapture func(open bool)
	onPhotos  func()
	onQuit    func()
	open      bool
	status    string
	mu        sync.RWMutex

	// Menu items stored for later updates
	menuCapture *systray.MenuItem
	menuStatus  *systray.MenuItem
}

// New creates a new Tray instance with the camera off.
func New() *Tray {
	return &Tray{status: "Camera off"}
}

// OnCapture sets the callback called when the user starts or cancels a capture.
func (t *Tray) OnCapture(fn func(open bool)) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.onCapture = fn
}

// OnPhotos sets the callback called when the photos menu item is clicked.
func (t *Tray) OnPhotos(fn func()) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.onPhotos = fn
}

// OnQuit sets the callback function to be called when the quit menu item is clicked.
func (t *Tray) OnQuit(fn func()) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.onQuit = fn
}

// Run starts the system tray application.
// This function blocks until systray.Quit() is called.
func (t *Tray) Run() {
	systray.Run(t.onReady, t.onExit)
}

// onReady is called when the system tray is ready.
// It sets up the menu structure.
func (t *Tray) onReady() {
	systray.SetTitle("HandCapture")
	systray.SetTooltip("Hand gesture photo capture")

	t.mu.Lock()
	t.menuCapture = systray.AddMenuItem(captureTitle(t.open), "Start or cancel the photo capture")
	systray.AddSeparator()

	t.menuStatus = systray.AddMenuItem(t.status, "Capture status")
	t.menuStatus.Disable()
	t.mu.Unlock()
	systray.AddSeparator()

	menuPhotos := systray.AddMenuItem("Open Photos...", "Open captured photos in browser")
	systray.AddSeparator()

	menuQuit := systray.AddMenuItem("Quit", "Quit HandCapture")

	// Handle menu item clicks in a separate goroutine
	go func() {
		for {
			select {
			case <-t.menuCapture.ClickedCh:
				t.handleCapture()
			case <-menuPhotos.ClickedCh:
				t.handlePhotos()
			case <-menuQuit.ClickedCh:
				t.handleQuit()
				return
			}
		}
	}()
}

func (t *Tray) onExit() {}

// handleCapture requests the opposite of the current capture state.
func (t *Tray) handleCapture() {
	t.mu.RLock()
	open := !t.open
	callback := t.onCapture
	t.mu.RUnlock()

	// Call the callback outside the lock to prevent deadlocks
	if callback != nil {
		callback(open)
	}
}

// handlePhotos handles the photos menu item click.
func (t *Tray) handlePhotos() {
	t.mu.RLock()
	callback := t.onPhotos
	t.mu.RUnlock()

	if callback != nil {
		callback()
	}
}

// handleQuit handles the quit menu item click.
func (t *Tray) handleQuit() {
	t.mu.RLock()
	callback := t.onQuit
	t.mu.RUnlock()

	if callback != nil {
		callback()
	}

	systray.Quit()
}

// SetState reflects the capture session in the menu.
func (t *Tray) SetState(open bool, status string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.open = open
	t.status = status

	if t.menuCapture != nil {
		t.menuCapture.SetTitle(captureTitle(open))
	}
	if t.menuStatus != nil {
		t.menuStatus.SetTitle(status)
	}
}

// IsOpen returns whether the capture session is shown as open.
func (t *Tray) IsOpen() bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.open
}

// Status returns the status line shown in the menu.
func (t *Tray) Status() string {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.status
}

func captureTitle(open bool) string {
	if open {
		return titleCancel
	}
	return titleTakePhoto
}
