package tui

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"nexus/internal/domain"
	"nexus/internal/llm"
)

// ChatPort is the TUI-facing subset of the chat service.
type ChatPort interface {
	Answer(ctx context.Context, messages []domain.Message) (domain.Answer, error)
}

type answerMsg struct {
	answer domain.Answer
	err    error
}

// Model is the Bubble Tea model for the chat application.
type Model struct {
	chat     ChatPort
	input    textinput.Model
	viewport viewport.Model
	history  []domain.Message
	matches  []domain.Match
	subtitle string
	status   string
	cursor   int
	waiting  bool
	ready    bool
	question string
}

// New creates a chat model. subtitle is shown under the header, e.g. the record count.
func New(chat ChatPort, subtitle string) Model {
	ti := textinput.New()
	ti.Prompt = "> "
	ti.Placeholder = "Ask the knowledge base and press Enter"
	ti.Focus()
	ti.CharLimit = 0
	vp := viewport.New(0, 0)
	return Model{chat: chat, input: ti, viewport: vp, subtitle: subtitle, status: "Ready. Up/Down cycles sources, Ctrl+C quits."}
}

func (m Model) Init() tea.Cmd { return textinput.Blink }

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.ready = true
		_, rh := resultBoxStyle.GetFrameSize()
		_, qh := queryBoxStyle.GetFrameSize()
		reserved := 2 + 1 + qh + 1 // header+subtitle, status, spacer
		m.viewport.Width = max(20, msg.Width)
		m.viewport.Height = max(3, msg.Height-reserved-rh)
		m.refresh()
		return m, nil
	case answerMsg:
		m.waiting = false
		if msg.err != nil {
			// drop the unanswered question so a retry does not repeat it
			m.history = m.history[:len(m.history)-1]
			m.input.SetValue(m.question)
			m.status = "Error: " + msg.err.Error()
			m.refresh()
			return m, nil
		}
		m.history = append(m.history, domain.Message{Role: llm.RoleAssistant, Content: msg.answer.Content})
		m.matches = msg.answer.Matches
		m.cursor = 0
		if srcs := domain.UniqueSources(msg.answer.Sources); len(srcs) > 0 {
			m.status = "Sources: " + strings.Join(srcs, ", ")
		} else {
			m.status = "No matching documents."
		}
		m.refresh()
		m.viewport.GotoBottom()
		return m, nil
	case tea.KeyMsg:
		if msg.Type == tea.KeyCtrlC || msg.Type == tea.KeyCtrlD {
			return m, tea.Quit
		}
		switch msg.String() {
		case "enter":
			q := strings.TrimSpace(m.input.Value())
			if q == "" || m.waiting {
				return m, nil
			}
			m.question = q
			m.history = append(m.history, domain.Message{Role: llm.RoleUser, Content: q})
			m.input.SetValue("")
			m.waiting = true
			m.status = "Thinking..."
			m.refresh()
			return m, m.ask(append([]domain.Message(nil), m.history...))
		case "down":
			if len(m.matches) > 0 {
				m.cursor = (m.cursor + 1) % len(m.matches)
				m.refresh()
				return m, nil
			}
		case "up":
			if len(m.matches) > 0 {
				m.cursor = (m.cursor - 1 + len(m.matches)) % len(m.matches)
				m.refresh()
				return m, nil
			}
		case "pgup", "pgdown":
			var cmd tea.Cmd
			m.viewport, cmd = m.viewport.Update(msg)
			return m, cmd
		}
	}
	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

func (m Model) ask(history []domain.Message) tea.Cmd {
	return func() tea.Msg {
		ans, err := m.chat.Answer(context.Background(), history)
		return answerMsg{answer: ans, err: err}
	}
}

func (m Model) View() string {
	if !m.ready {
		return "Loading..."
	}
	header := lipgloss.NewStyle().Bold(true).Render("Nexus")
	subtitle := lipgloss.NewStyle().Foreground(lipgloss.Color("8")).Render(m.subtitle)
	input := queryBoxStyle.Render(m.input.View())
	status := lipgloss.NewStyle().Foreground(lipgloss.Color("10")).Render(m.status)
	body := resultBoxStyle.Render(m.viewport.View())
	return header + "\n" + subtitle + "\n" + body + "\n" + input + "\n" + status
}

func (m *Model) refresh() {
	m.viewport.SetContent(m.renderTranscript() + m.renderCurrentMatch())
}

func (m Model) renderTranscript() string {
	if len(m.history) == 0 {
		return "No messages yet."
	}
	var b strings.Builder
	for _, msg := range m.history {
		speaker := userStyle.Render("You")
		if msg.Role == llm.RoleAssistant {
			speaker = assistantStyle.Render("Nexus")
		}
		fmt.Fprintf(&b, "%s: %s\n\n", speaker, msg.Content)
	}
	return b.String()
}

func (m Model) renderCurrentMatch() string {
	if len(m.matches) == 0 {
		return ""
	}
	r := m.matches[m.cursor]
	title := fmt.Sprintf("Match %d/%d  %s  similarity=%.3f", m.cursor+1, len(m.matches), r.Source(), r.Similarity)
	return dividerStyle.Render(title) + "\n" + highlightBestSentence(r.Content, m.lastQuestion())
}

func (m Model) lastQuestion() string {
	for i := len(m.history) - 1; i >= 0; i-- {
		if m.history[i].Role == llm.RoleUser {
			return m.history[i].Content
		}
	}
	return ""
}

var (
	resultBoxStyle = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).Padding(0, 1)
	queryBoxStyle  = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).Padding(0, 1)
	highlightStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("11")).Bold(true)
	userStyle      = lipgloss.NewStyle().Foreground(lipgloss.Color("12")).Bold(true)
	assistantStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("13")).Bold(true)
	dividerStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("8"))
	unicodeWordRe  = regexp.MustCompile(`\p{L}+(?:['’]\p{L}+)*`)
	sentenceRe     = regexp.MustCompile(`(?m)(?U)([^.!?]+[.!?])`)
)

// highlightBestSentence marks the sentence sharing the most words with query.
func highlightBestSentence(text, query string) string {
	if strings.TrimSpace(text) == "" {
		return text
	}
	sentences := sentenceRe.FindAllString(text, -1)
	if len(sentences) == 0 {
		sentences = []string{strings.TrimSpace(text)}
	}
	qTokens := toTokenSet(query)
	if len(qTokens) == 0 {
		return strings.Join(sentences, " ")
	}
	best := bestSentence(sentences, qTokens)
	for i := range sentences {
		sent := strings.TrimSpace(sentences[i])
		if i == best {
			sentences[i] = highlightStyle.Render(sent)
		} else {
			sentences[i] = sent
		}
	}
	return strings.Join(sentences, " ")
}

func bestSentence(sentences []string, qTokens map[string]struct{}) int {
	bestIdx, bestScore := 0, -1
	for i, s := range sentences {
		if score := overlap(qTokens, s); score > bestScore {
			bestScore = score
			bestIdx = i
		}
	}
	return bestIdx
}

func toTokenSet(s string) map[string]struct{} {
	tokens := unicodeWordRe.FindAllString(strings.ToLower(s), -1)
	m := make(map[string]struct{}, len(tokens))
	for _, t := range tokens {
		m[t] = struct{}{}
	}
	return m
}

func overlap(queryTokens map[string]struct{}, sentence string) int {
	score := 0
	seen := make(map[string]struct{})
	for _, t := range unicodeWordRe.FindAllString(strings.ToLower(sentence), -1) {
		if _, ok := seen[t]; ok {
			continue
		}
		seen[t] = struct{}{}
		if _, ok := queryTokens[t]; ok {
			score++
		}
	}
	return score
}
