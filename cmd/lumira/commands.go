package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	tea "github.com/charmbracelet/bubbletea"
)

const commandHelp = `Commands:
  /upload <path>   add a file to the knowledge base
  /files           list knowledge base files
  /delete <name>   remove a knowledge base file
  /use [name]      scope questions to a file, no name clears it
  /mute, /unmute   toggle narration
  /stop            stop speaking
  /cancel          cancel the reply`

func (m model) runCommand(line string) tea.Cmd {
	name, arg, _ := strings.Cut(strings.TrimPrefix(line, "/"), " ")
	arg = strings.TrimSpace(arg)

	switch name {
	case "help":
		return note(commandHelp)

	case "upload":
		if arg == "" {
			return note("Usage: /upload <path>")
		}
		return func() tea.Msg {
			file, err := os.Open(arg)
			if err != nil {
				return errMsg{err}
			}
			defer file.Close()

			status, err := m.knowledge.Upload(m.ctx, filepath.Base(arg), file)
			if err != nil {
				return errMsg{err}
			}
			return noteMsg(status)
		}

	case "files":
		return func() tea.Msg {
			files, err := m.knowledge.List(m.ctx)
			if err != nil {
				return errMsg{err}
			}
			if len(files) == 0 {
				return noteMsg("The knowledge base is empty.")
			}
			lines := make([]string, 0, len(files))
			for _, f := range files {
				lines = append(lines, fmt.Sprintf("%s (%s, %s)", f.Name, f.Size, f.Status))
			}
			return noteMsg("Files:\n" + strings.Join(lines, "\n"))
		}

	case "delete":
		if arg == "" {
			return note("Usage: /delete <name>")
		}
		return func() tea.Msg {
			status, err := m.knowledge.Delete(m.ctx, arg)
			if err != nil {
				return errMsg{err}
			}
			if m.assistant.ActiveFile() == arg {
				m.assistant.SetActiveFile("")
			}
			return noteMsg(status)
		}

	case "use":
		m.assistant.SetActiveFile(arg)
		if arg == "" {
			return note("Questions are no longer scoped to a file.")
		}
		return note("Questions are now about " + arg + ".")

	case "mute":
		m.assistant.Mute()
		return note("Narration muted.")

	case "unmute":
		m.assistant.Unmute()
		return note("Narration on.")

	case "stop":
		m.assistant.StopSpeaking()
		return nil

	case "cancel":
		m.assistant.Cancel()
		return nil
	}

	return note(fmt.Sprintf("Unknown command /%s, try /help.", name))
}

func note(text string) tea.Cmd {
	return func() tea.Msg { return noteMsg(text) }
}
