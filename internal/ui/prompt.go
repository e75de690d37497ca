// internal/ui/prompt.go
package ui

import (
	"errors"
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
)

// ErrCanceled is returned when the user leaves a prompt without answering.
var ErrCanceled = errors.New("canceled")

// PickItem is one row of the account picker.
type PickItem struct {
	Name    string
	Detail  string // e.g. "added 2026-01-02"
	Current bool
}

type pickerModel struct {
	title  string
	items  []PickItem
	cursor int
	picked string
}

func newPicker(title string, items []PickItem) pickerModel {
	m := pickerModel{title: title, items: items}
	// Start on the first account that isn't already live
	for i, it := range items {
		if !it.Current {
			m.cursor = i
			break
		}
	}
	return m
}

func (m pickerModel) Init() tea.Cmd { return nil }

func (m pickerModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	key, ok := msg.(tea.KeyMsg)
	if !ok {
		return m, nil
	}
	n := len(m.items)
	switch key.String() {
	case "ctrl+c", "q", "esc":
		return m, tea.Quit
	case "enter":
		m.picked = m.items[m.cursor].Name
		return m, tea.Quit
	case "down", "j", "tab":
		m.cursor = (m.cursor + 1) % n
	case "up", "k", "shift+tab":
		m.cursor = (m.cursor - 1 + n) % n
	case "home", "g":
		m.cursor = 0
	case "end", "G":
		m.cursor = n - 1
	}
	return m, nil
}

func (m pickerModel) View() string {
	var sb strings.Builder
	sb.WriteString(TitleStyle.Render(m.title) + "\n\n")

	width := 0
	for _, it := range m.items {
		if w := len(it.Name); w > width {
			width = w
		}
	}
	for i, it := range m.items {
		cursor := "  "
		name := PadRight(it.Name, width)
		if i == m.cursor {
			cursor = SubtitleStyle.Render("> ")
			name = SubtitleStyle.Render(name)
		}
		line := cursor + name
		if it.Current {
			line += " " + SuccessStyle.Render("(current)")
		}
		if it.Detail != "" {
			line += "  " + MutedStyle.Render(it.Detail)
		}
		sb.WriteString(line + "\n")
	}
	sb.WriteString("\n" + MutedStyle.Render("↑/↓ move · enter select · q cancel") + "\n")
	return sb.String()
}

type namePromptModel struct {
	question string
	input    textinput.Model
	validate func(string) error
	err      error
	done     bool
}

func newNamePrompt(question, placeholder string, validate func(string) error) namePromptModel {
	ti := textinput.New()
	ti.Placeholder = placeholder
	ti.Focus()
	ti.CharLimit = 64
	ti.Width = 40
	return namePromptModel{question: question, input: ti, validate: validate}
}

func (m namePromptModel) Init() tea.Cmd {
	return textinput.Blink
}

func (m namePromptModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	if key, ok := msg.(tea.KeyMsg); ok {
		switch key.Type {
		case tea.KeyCtrlC, tea.KeyEsc:
			return m, tea.Quit
		case tea.KeyEnter:
			value := strings.TrimSpace(m.input.Value())
			if m.err = m.check(value); m.err != nil {
				return m, nil
			}
			m.done = true
			return m, tea.Quit
		}
	}
	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

func (m namePromptModel) check(value string) error {
	if value == "" {
		return errors.New("name cannot be empty")
	}
	if m.validate != nil {
		return m.validate(value)
	}
	return nil
}

func (m namePromptModel) View() string {
	view := TitleStyle.Render(m.question) + "\n\n" + m.input.View() + "\n"
	if m.err != nil {
		view += ErrorStyle.Render(m.err.Error()) + "\n"
	}
	return view + "\n" + MutedStyle.Render("enter confirm · esc cancel") + "\n"
}

// PickAccount shows an interactive account list and returns the chosen name.
func PickAccount(title string, items []PickItem) (string, error) {
	if len(items) == 0 {
		return "", fmt.Errorf("no accounts to choose from")
	}
	final, err := tea.NewProgram(newPicker(title, items)).Run()
	if err != nil {
		return "", err
	}
	if picked := final.(pickerModel).picked; picked != "" {
		return picked, nil
	}
	return "", ErrCanceled
}

// AskName prompts for an account name until validate accepts it.
func AskName(question, placeholder string, validate func(string) error) (string, error) {
	final, err := tea.NewProgram(newNamePrompt(question, placeholder, validate)).Run()
	if err != nil {
		return "", err
	}
	m := final.(namePromptModel)
	if !m.done {
		return "", ErrCanceled
	}
	return strings.TrimSpace(m.input.Value()), nil
}
