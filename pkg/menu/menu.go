// Package menu draws a centred selection list over a tcell screen
package menu

import (
	"github.com/gdamore/tcell/v2"
	"github.com/mattn/go-runewidth"
)

// Menu represents a modal list overlay
type Menu struct {
	items    []MenuItem
	selected int
	top      int // first item shown when the list is taller than the screen
	visible  bool
	screen   tcell.Screen
	x, y     int
	width    int
	height   int
	title    string
	footer   string

	// Callbacks
	onClose  func()
	onError  func(error)
	onDelete func(index int, item MenuItem)
	runeKeys map[rune]func()
}

// MenuItem represents a single menu item
type MenuItem struct {
	Label    string
	Shortcut string
	Action   func() error
	Enabled  bool
}

const (
	minWidth = 20
	// border, title, separator and footer rows
	chromeHeight = 5
)

var (
	menuStyle     = tcell.StyleDefault.Background(tcell.ColorDarkBlue).Foreground(tcell.ColorWhite)
	selectedStyle = tcell.StyleDefault.Background(tcell.ColorWhite).Foreground(tcell.ColorBlack)
	disabledStyle = tcell.StyleDefault.Background(tcell.ColorDarkBlue).Foreground(tcell.ColorGray)
)

// NewMenu creates a new menu
func NewMenu(title string, screen tcell.Screen) *Menu {
	return &Menu{
		title:    title,
		screen:   screen,
		items:    make([]MenuItem, 0),
		runeKeys: make(map[rune]func()),
	}
}

// AddItem adds a menu item
func (m *Menu) AddItem(label, shortcut string, action func() error) {
	m.items = append(m.items, MenuItem{
		Label:    label,
		Shortcut: shortcut,
		Action:   action,
		Enabled:  true,
	})
}

// Items returns the menu items
func (m *Menu) Items() []MenuItem {
	return m.items
}

// Selected returns the index of the highlighted item, or -1 when empty
func (m *Menu) Selected() int {
	if len(m.items) == 0 {
		return -1
	}
	return m.selected
}

// SetFooter sets the hint line drawn at the bottom of the box
func (m *Menu) SetFooter(footer string) {
	m.footer = footer
}

// BindRune runs fn when r is typed while the menu is open
func (m *Menu) BindRune(r rune, fn func()) {
	m.runeKeys[r] = fn
}

// SetOnClose sets the callback for when menu closes
func (m *Menu) SetOnClose(callback func()) {
	m.onClose = callback
}

// SetOnError sets the callback receiving errors from item actions
func (m *Menu) SetOnError(callback func(error)) {
	m.onError = callback
}

// SetOnDelete makes the Delete key remove the highlighted item and report it
func (m *Menu) SetOnDelete(callback func(index int, item MenuItem)) {
	m.onDelete = callback
}

// Show displays the menu
func (m *Menu) Show() {
	m.visible = true
	m.clampSelection()
	m.Draw()
}

// Hide hides the menu
func (m *Menu) Hide() {
	if !m.visible {
		return
	}
	m.visible = false
	if m.onClose != nil {
		m.onClose()
	}
}

// IsVisible returns whether the menu is visible
func (m *Menu) IsVisible() bool {
	return m.visible
}

// Draw renders the menu on screen. It does not call Show on the screen.
func (m *Menu) Draw() {
	if !m.visible {
		return
	}

	m.layout()
	m.drawBorder()

	// Title and separator
	titleY := m.y + 1
	m.drawText(m.x+(m.width-runewidth.StringWidth(m.title))/2, titleY, m.title, menuStyle.Bold(true))
	for x := m.x + 1; x < m.x+m.width-1; x++ {
		m.screen.SetContent(x, titleY+1, '─', nil, menuStyle)
	}

	itemY := titleY + 2
	rows := m.visibleRows()
	if len(m.items) == 0 {
		m.drawText(m.x+2, itemY, "(empty)", disabledStyle)
	}
	for i := m.top; i < len(m.items) && i < m.top+rows; i++ {
		item := m.items[i]

		itemStyle := menuStyle
		if !item.Enabled {
			itemStyle = disabledStyle
		} else if i == m.selected {
			itemStyle = selectedStyle
		}

		for x := m.x + 1; x < m.x+m.width-1; x++ {
			m.screen.SetContent(x, itemY, ' ', nil, itemStyle)
		}

		label := runewidth.Truncate(item.Label, m.width-4-runewidth.StringWidth(item.Shortcut), "…")
		m.drawText(m.x+2, itemY, label, itemStyle)

		if item.Shortcut != "" {
			shortcutX := m.x + m.width - runewidth.StringWidth(item.Shortcut) - 2
			m.drawText(shortcutX, itemY, item.Shortcut, itemStyle)
		}
		itemY++
	}

	if m.footer != "" {
		footer := runewidth.Truncate(m.footer, m.width-4, "…")
		m.drawText(m.x+2, m.y+m.height-2, footer, disabledStyle)
	}
}

// HandleKey processes keyboard input. It reports whether the key was consumed.
func (m *Menu) HandleKey(ev *tcell.EventKey) bool {
	if !m.visible {
		return false
	}

	switch ev.Key() {
	case tcell.KeyEscape:
		m.Hide()
		return true

	case tcell.KeyUp:
		m.moveSelection(-1)
		return true

	case tcell.KeyDown:
		m.moveSelection(1)
		return true

	case tcell.KeyPgUp:
		m.moveSelection(-m.visibleRows())
		return true

	case tcell.KeyPgDn:
		m.moveSelection(m.visibleRows())
		return true

	case tcell.KeyEnter:
		m.activateSelected()
		return true

	case tcell.KeyDelete:
		m.deleteSelected()
		return true

	case tcell.KeyRune:
		if fn, ok := m.runeKeys[ev.Rune()]; ok {
			fn()
			return true
		}
		for i, item := range m.items {
			if item.Shortcut != "" && item.Enabled && string(ev.Rune()) == item.Shortcut {
				m.selected = i
				m.activateSelected()
				return true
			}
		}
	}

	// Modal: nothing reaches the screen behind
	return true
}

// SetItems replaces the items, keeping the selection in range
func (m *Menu) SetItems(items []MenuItem) {
	m.items = items
	m.clampSelection()
}

// Clear removes all menu items
func (m *Menu) Clear() {
	m.items = []MenuItem{}
	m.selected = 0
	m.top = 0
}

// moveSelection moves the selection by delta, stopping at either end
func (m *Menu) moveSelection(delta int) {
	if len(m.items) == 0 {
		return
	}
	m.selected = min(max(m.selected+delta, 0), len(m.items)-1)
	m.scrollToSelection()
}

func (m *Menu) activateSelected() {
	if m.selected < 0 || m.selected >= len(m.items) {
		return
	}

	item := m.items[m.selected]
	if !item.Enabled {
		return
	}

	if item.Action != nil {
		if err := item.Action(); err != nil && m.onError != nil {
			m.onError(err)
		}
	}
	m.Hide()
}

func (m *Menu) deleteSelected() {
	if m.onDelete == nil || m.selected < 0 || m.selected >= len(m.items) {
		return
	}

	index := m.selected
	item := m.items[index]
	m.items = append(m.items[:index], m.items[index+1:]...)
	m.clampSelection()
	m.onDelete(index, item)
}

func (m *Menu) clampSelection() {
	m.selected = min(max(m.selected, 0), max(len(m.items)-1, 0))
	m.scrollToSelection()
}

func (m *Menu) scrollToSelection() {
	rows := m.visibleRows()
	if m.selected < m.top {
		m.top = m.selected
	}
	if rows > 0 && m.selected >= m.top+rows {
		m.top = m.selected - rows + 1
	}
	m.top = max(min(m.top, len(m.items)-rows), 0)
}

// visibleRows is the number of item rows that fit on screen
func (m *Menu) visibleRows() int {
	_, screenHeight := m.screen.Size()
	return max(min(len(m.items), screenHeight-chromeHeight-2), 1)
}

// layout sizes the box from its contents and centres it on screen
func (m *Menu) layout() {
	screenWidth, screenHeight := m.screen.Size()

	width := max(runewidth.StringWidth(m.title)+4, runewidth.StringWidth(m.footer)+4, minWidth)
	for _, item := range m.items {
		if w := runewidth.StringWidth(item.Label) + runewidth.StringWidth(item.Shortcut) + 6; w > width {
			width = w
		}
	}
	m.width = min(width, screenWidth)
	m.height = min(m.visibleRows()+chromeHeight, screenHeight)
	m.x = (screenWidth - m.width) / 2
	m.y = (screenHeight - m.height) / 2
}

// drawBorder draws the menu border
func (m *Menu) drawBorder() {
	// Top border
	m.screen.SetContent(m.x, m.y, '┌', nil, menuStyle)
	m.screen.SetContent(m.x+m.width-1, m.y, '┐', nil, menuStyle)
	for x := m.x + 1; x < m.x+m.width-1; x++ {
		m.screen.SetContent(x, m.y, '─', nil, menuStyle)
	}

	// Side borders and fill
	for y := m.y + 1; y < m.y+m.height-1; y++ {
		m.screen.SetContent(m.x, y, '│', nil, menuStyle)
		m.screen.SetContent(m.x+m.width-1, y, '│', nil, menuStyle)
		for x := m.x + 1; x < m.x+m.width-1; x++ {
			m.screen.SetContent(x, y, ' ', nil, menuStyle)
		}
	}

	// Bottom border
	m.screen.SetContent(m.x, m.y+m.height-1, '└', nil, menuStyle)
	m.screen.SetContent(m.x+m.width-1, m.y+m.height-1, '┘', nil, menuStyle)
	for x := m.x + 1; x < m.x+m.width-1; x++ {
		m.screen.SetContent(x, m.y+m.height-1, '─', nil, menuStyle)
	}
}

// drawText draws text at the specified position
func (m *Menu) drawText(x, y int, text string, style tcell.Style) {
	for _, ch := range text {
		m.screen.SetContent(x, y, ch, nil, style)
		x += runewidth.RuneWidth(ch)
	}
}
