package qa

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/charmbracelet/lipgloss"
)

const (
	previewLength = 300
	ruleWidth     = 50
	maxLineBytes  = 1024 * 1024
)

type styles struct {
	banner lipgloss.Style
	header lipgloss.Style
	prompt lipgloss.Style
	index  lipgloss.Style
	rule   lipgloss.Style
}

// newStyles renders for out, so output that is not a terminal stays plain.
func newStyles(out io.Writer) styles {
	r := lipgloss.NewRenderer(out)
	return styles{
		banner: r.NewStyle().Bold(true).Foreground(lipgloss.Color("10")),
		header: r.NewStyle().Bold(true),
		prompt: r.NewStyle().Foreground(lipgloss.Color("12")),
		index:  r.NewStyle().Foreground(lipgloss.Color("11")),
		rule:   r.NewStyle().Foreground(lipgloss.Color("8")),
	}
}

// Session is the interactive question loop over a reader and a writer.
type Session struct {
	answerer *Answerer
	in       io.Reader
	out      io.Writer
	styles   styles
	logger   *slog.Logger
}

// NewSession creates a session reading questions from in and writing
// answers to out.
func NewSession(answerer *Answerer, in io.Reader, out io.Writer, logger *slog.Logger) *Session {
	if logger == nil {
		logger = slog.Default()
	}
	return &Session{
		answerer: answerer,
		in:       in,
		out:      out,
		styles:   newStyles(out),
		logger:   logger,
	}
}

// Run prompts for questions until the user types exit or input ends.
// A failed retrieval or generation ends the loop with that error.
func (s *Session) Run(ctx context.Context) error {
	lines, readErr := s.readLines(ctx)

	fmt.Fprintf(s.out, "\n%s\n\n", s.styles.banner.Render("Ready! Type 'exit' to quit."))

	for {
		fmt.Fprint(s.out, s.styles.prompt.Render("You: "))

		var line string
		select {
		case <-ctx.Done():
			fmt.Fprintln(s.out)
			return ctx.Err()
		case l, ok := <-lines:
			if !ok {
				fmt.Fprintln(s.out)
				select {
				case err := <-readErr:
					if err != nil {
						return fmt.Errorf("read input: %w", err)
					}
				default:
				}
				return nil
			}
			line = l
		}

		if isExit(line) {
			return nil
		}
		question := strings.TrimSpace(line)
		if question == "" {
			continue
		}

		s.logger.Debug("Answering question", "question", question)
		answer, err := s.answerer.Ask(ctx, question)
		if err != nil {
			return err
		}
		s.printAnswer(answer)
	}
}

// readLines feeds input lines to a channel so that a blocked read does not
// keep Run from noticing cancellation.
func (s *Session) readLines(ctx context.Context) (<-chan string, <-chan error) {
	lines := make(chan string)
	errs := make(chan error, 1)

	scanner := bufio.NewScanner(s.in)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineBytes)

	go func() {
		defer close(lines)
		for scanner.Scan() {
			select {
			case lines <- scanner.Text():
			case <-ctx.Done():
				return
			}
		}
		errs <- scanner.Err()
	}()
	return lines, errs
}

func (s *Session) printAnswer(answer *Answer) {
	fmt.Fprintf(s.out, "\n%s\n%s\n", s.styles.header.Render("Answer:"), answer.Text)

	fmt.Fprintf(s.out, "\n%s\n\n", s.styles.header.Render("Context Used:"))
	for i, source := range answer.Sources {
		fmt.Fprintf(s.out, "%s %s...\n\n", s.styles.index.Render(fmt.Sprintf("[%d]", i+1)), preview(source.Content))
	}

	fmt.Fprintf(s.out, "\n%s\n\n", s.styles.rule.Render(strings.Repeat("-", ruleWidth)))
}

func isExit(line string) bool {
	return strings.ToLower(strings.TrimSpace(line)) == "exit"
}

// preview returns the first 300 characters of content.
func preview(content string) string {
	runes := []rune(content)
	if len(runes) <= previewLength {
		return content
	}
	return string(runes[:previewLength])
}
