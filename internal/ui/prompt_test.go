package ui

import (
	"errors"
	"strings"
	"testing"

	tea "github.com/charmbracelet/bubbletea"
)

func key(s string) tea.KeyMsg {
	switch s {
	case "enter":
		return tea.KeyMsg{Type: tea.KeyEnter}
	case "up":
		return tea.KeyMsg{Type: tea.KeyUp}
	case "down":
		return tea.KeyMsg{Type: tea.KeyDown}
	case "esc":
		return tea.KeyMsg{Type: tea.KeyEsc}
	}
	return tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(s)}
}

func testItems() []PickItem {
	return []PickItem{
		{Name: "home", Current: true},
		{Name: "work", Detail: "added 2026-01-02"},
		{Name: "spare"},
	}
}

func TestPickerStartsAfterCurrent(t *testing.T) {
	m := newPicker("Switch to which account?", testItems())
	if m.cursor != 1 {
		t.Errorf("cursor = %d, want 1", m.cursor)
	}
}

func TestPickerNavigationWraps(t *testing.T) {
	var m tea.Model = newPicker("pick", testItems())
	for _, k := range []string{"down", "down", "up", "up", "up"} {
		m, _ = m.Update(key(k))
	}
	// 1 -> 2 -> 0 -> 2 -> 1 -> 0
	if got := m.(pickerModel).cursor; got != 0 {
		t.Fatalf("cursor = %d, want 0", got)
	}
	m, _ = m.Update(key("G"))
	if got := m.(pickerModel).cursor; got != 2 {
		t.Fatalf("cursor after G = %d, want 2", got)
	}

	m, cmd := m.Update(key("enter"))
	if cmd == nil {
		t.Error("enter should quit")
	}
	if got := m.(pickerModel).picked; got != "spare" {
		t.Errorf("picked = %q, want spare", got)
	}
}

func TestPickerView(t *testing.T) {
	view := stripANSI(newPicker("Switch to which account?", testItems()).View())
	for _, want := range []string{"Switch to which account?", "home", "(current)", "> work", "added 2026-01-02", "spare"} {
		if !strings.Contains(view, want) {
			t.Errorf("view missing %q:\n%s", want, view)
		}
	}
}

func TestPickerCancel(t *testing.T) {
	var m tea.Model = newPicker("pick", testItems())
	m, cmd := m.Update(key("q"))
	if cmd == nil {
		t.Error("q should quit")
	}
	if got := m.(pickerModel).picked; got != "" {
		t.Errorf("picked = %q, want empty", got)
	}
}

func TestNamePromptValidation(t *testing.T) {
	taken := func(name string) error {
		if name == "work" {
			return errors.New("'work' already exists")
		}
		return nil
	}

	var m tea.Model = newNamePrompt("Name for the current Codex login:", "work", taken)

	// Empty input is rejected and the prompt stays open
	m, cmd := m.Update(key("enter"))
	if cmd != nil || m.(namePromptModel).err == nil {
		t.Fatal("empty name should be rejected")
	}

	m, _ = m.Update(key("work"))
	m, cmd = m.Update(key("enter"))
	if cmd != nil || !strings.Contains(stripANSI(m.View()), "already exists") {
		t.Fatalf("validator error not shown:\n%s", m.View())
	}

	for range "work" {
		m, _ = m.Update(tea.KeyMsg{Type: tea.KeyBackspace})
	}
	m, _ = m.Update(key("personal"))
	m, cmd = m.Update(key("enter"))
	if cmd == nil {
		t.Fatal("valid name should quit")
	}
	pm := m.(namePromptModel)
	if !pm.done || pm.input.Value() != "personal" {
		t.Errorf("done=%v value=%q", pm.done, pm.input.Value())
	}
}

func TestNamePromptEscCancels(t *testing.T) {
	var m tea.Model = newNamePrompt("q", "", nil)
	m, cmd := m.Update(key("esc"))
	if cmd == nil || m.(namePromptModel).done {
		t.Error("esc should quit without an answer")
	}
}

func TestPickAccountEmpty(t *testing.T) {
	if _, err := PickAccount("pick", nil); err == nil {
		t.Error("expected error for empty list")
	}
}
