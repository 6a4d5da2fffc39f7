// Package tray shows platewatch in the system tray: a recognition switch,
// the last accepted plate and a shortcut to the dashboard.
package tray

import (
	"fmt"
	"os/exec"
	"runtime"
	"sync"

	"github.com/getlantern/systray"
)

// Tray is the system tray menu.
type Tray struct {
	onToggle    func(enabled bool)
	onDashboard func()
	onQuit      func()
	enabled     bool
	lastPlate   string
	mu          sync.RWMutex

	menuToggle    *systray.MenuItem
	menuLastPlate *systray.MenuItem
}

// New creates a Tray showing the given recognition state.
func New(enabled bool) *Tray {
	return &Tray{enabled: enabled}
}

// OnToggle sets the function called when recognition is switched.
func (t *Tray) OnToggle(fn func(enabled bool)) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.onToggle = fn
}

// OnDashboard sets the function called by "Open Dashboard...".
func (t *Tray) OnDashboard(fn func()) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.onDashboard = fn
}

// OnQuit sets the function called when the user quits.
func (t *Tray) OnQuit(fn func()) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.onQuit = fn
}

// Run shows the tray icon and blocks until Quit.
// It must be called from the main goroutine.
func (t *Tray) Run() {
	systray.Run(t.onReady, func() {})
}

// Quit removes the tray icon, making Run return.
func (t *Tray) Quit() {
	systray.Quit()
}

func (t *Tray) onReady() {
	systray.SetTitle("Platewatch")
	systray.SetTooltip("Platewatch plate recognition")

	t.mu.Lock()
	t.menuToggle = systray.AddMenuItem(toggleTitle(t.enabled), "Toggle plate recognition")
	systray.AddSeparator()
	t.menuLastPlate = systray.AddMenuItem(lastPlateTitle(t.lastPlate), "Last accepted plate")
	t.menuLastPlate.Disable()
	t.mu.Unlock()
	systray.AddSeparator()

	menuDashboard := systray.AddMenuItem("Open Dashboard...", "Open the dashboard in a browser")
	systray.AddSeparator()
	menuQuit := systray.AddMenuItem("Quit", "Quit Platewatch")

	go func() {
		for {
			select {
			case <-t.menuToggle.ClickedCh:
				t.handleToggle()
			case <-menuDashboard.ClickedCh:
				t.call(func() func() { return t.onDashboard })
			case <-menuQuit.ClickedCh:
				t.call(func() func() { return t.onQuit })
				systray.Quit()
				return
			}
		}
	}()
}

func (t *Tray) handleToggle() {
	t.mu.Lock()
	t.enabled = !t.enabled
	enabled := t.enabled
	t.menuToggle.SetTitle(toggleTitle(enabled))
	callback := t.onToggle
	t.mu.Unlock()

	// Outside the lock: the callback may call SetEnabled.
	if callback != nil {
		callback(enabled)
	}
}

func (t *Tray) call(get func() func()) {
	t.mu.RLock()
	fn := get()
	t.mu.RUnlock()
	if fn != nil {
		fn()
	}
}

// SetEnabled updates the switch when recognition is toggled elsewhere.
func (t *Tray) SetEnabled(enabled bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.enabled = enabled
	if t.menuToggle != nil {
		t.menuToggle.SetTitle(toggleTitle(enabled))
	}
}

// IsEnabled returns the state shown by the switch.
func (t *Tray) IsEnabled() bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.enabled
}

// SetLastPlate shows the most recently accepted plate.
func (t *Tray) SetLastPlate(number, mode string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.lastPlate = number
	if number != "" && mode != "" {
		t.lastPlate = fmt.Sprintf("%s (%s)", number, mode)
	}
	if t.menuLastPlate != nil {
		t.menuLastPlate.SetTitle(lastPlateTitle(t.lastPlate))
	}
}

// LastPlate returns the text shown for the last plate.
func (t *Tray) LastPlate() string {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.lastPlate
}

func toggleTitle(enabled bool) string {
	if enabled {
		return "● Recognition on"
	}
	return "○ Recognition off"
}

func lastPlateTitle(plate string) string {
	if plate == "" {
		return "Last: none"
	}
	return "Last: " + plate
}

// OpenBrowser opens url with the desktop's default handler.
func OpenBrowser(url string) error {
	var cmd *exec.Cmd
	switch runtime.GOOS {
	case "darwin":
		cmd = exec.Command("open", url)
	case "windows":
		cmd = exec.Command("rundll32", "url.dll,FileProtocolHandler", url)
	default:
		cmd = exec.Command("xdg-open", url)
	}
	return cmd.Start()
}
