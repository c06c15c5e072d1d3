// Package review implements the interactive terminal session for manually
// classifying pending crosswalk labels. The session is the human side of
// the crosswalk contract: it only ever calls ApplyManualReview, so every
// decision it records is append-only truth for later pipeline runs.
package review

import (
	"bufio"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/fatih/color"

	"github.com/survey-pipeline/internal/crosswalk"
	"github.com/survey-pipeline/internal/refdata"
	"github.com/survey-pipeline/internal/suggest"
)

// Session drives one interactive review sitting.
type Session struct {
	Store       *crosswalk.Store
	Ref         map[int]refdata.Characteristic
	Suggestions *suggest.Index

	In  io.Reader
	Out io.Writer
}

var (
	labelColor   = color.New(color.FgCyan, color.Bold)
	optionColor  = color.New(color.FgGreen)
	warnColor    = color.New(color.FgYellow)
	successColor = color.New(color.FgGreen, color.Bold)
)

// Run reviews up to batchSize pending labels and returns how many decisions
// were recorded. Skipped labels stay pending; quitting ends the session
// without touching the remaining queue.
func (s *Session) Run(batchSize int) (int, error) {
	pending := s.Store.Pending()
	if len(pending) == 0 {
		fmt.Fprintln(s.Out, "No labels awaiting review.")
		return 0, nil
	}
	if batchSize > 0 && len(pending) > batchSize {
		pending = pending[:batchSize]
	}

	fmt.Fprintf(s.Out, "%d labels awaiting review.\n\n", len(pending))

	reader := bufio.NewReader(s.In)
	reviewed := 0

	for i, label := range pending {
		fmt.Fprintf(s.Out, "=== Label %d of %d ===\n", i+1, len(pending))
		labelColor.Fprintf(s.Out, "%s\n\n", label)

		candidates := s.Suggestions.Suggest(label)
		for j, c := range candidates {
			switch {
			case c.Distance == 0:
				optionColor.Fprintf(s.Out, "  %d. %s (code %d, exact)\n", j+1, c.Name, c.Code)
			case c.Distance > 0:
				optionColor.Fprintf(s.Out, "  %d. %s (code %d, distance %d)\n", j+1, c.Name, c.Code, c.Distance)
			default:
				optionColor.Fprintf(s.Out, "  %d. %s (code %d, partial)\n", j+1, c.Name, c.Code)
			}
		}
		if len(candidates) == 0 {
			warnColor.Fprintln(s.Out, "  no suggestions")
		}

		fmt.Fprintln(s.Out, "\nOptions: [number] accept suggestion, c CODE[,CODE..] enter codes,")
		fmt.Fprintln(s.Out, "         n no code applies, s skip, q quit")

		decision, quit, err := s.decide(reader, label, candidates)
		if err != nil {
			return reviewed, err
		}
		if quit {
			break
		}
		if decision {
			reviewed++
		}
		fmt.Fprintln(s.Out)
	}

	fmt.Fprintf(s.Out, "Review session complete: %d decisions recorded, %d labels still pending.\n",
		reviewed, len(s.Store.Pending()))
	return reviewed, nil
}

// decide prompts until a valid decision is made for the label. Returns
// (recorded, quit, err).
func (s *Session) decide(reader *bufio.Reader, label string, candidates []suggest.Candidate) (bool, bool, error) {
	for {
		fmt.Fprint(s.Out, "Decision: ")
		line, err := reader.ReadString('\n')
		if err == io.EOF && line == "" {
			return false, true, nil
		}
		if err != nil && err != io.EOF {
			return false, false, fmt.Errorf("failed to read decision: %w", err)
		}

		choice := strings.TrimSpace(line)
		switch {
		case choice == "q":
			return false, true, nil
		case choice == "s":
			return false, false, nil
		case choice == "n":
			if err := s.Store.ApplyManualReview(label, nil, nil); err != nil {
				return false, false, err
			}
			successColor.Fprintln(s.Out, "Recorded: no code applies")
			return true, false, nil
		case strings.HasPrefix(choice, "c "):
			codes, names, ok := s.parseCodes(strings.TrimPrefix(choice, "c "))
			if !ok {
				continue
			}
			if err := s.Store.ApplyManualReview(label, codes, names); err != nil {
				warnColor.Fprintf(s.Out, "%v\n", err)
				continue
			}
			successColor.Fprintf(s.Out, "Recorded: %v\n", codes)
			return true, false, nil
		default:
			num, err := strconv.Atoi(choice)
			if err != nil || num < 1 || num > len(candidates) {
				warnColor.Fprintf(s.Out, "Invalid choice %q\n", choice)
				continue
			}
			picked := candidates[num-1]
			if err := s.Store.ApplyManualReview(label, []int{picked.Code}, []string{picked.Name}); err != nil {
				return false, false, err
			}
			successColor.Fprintf(s.Out, "Recorded: %s (code %d)\n", picked.Name, picked.Code)
			return true, false, nil
		}
	}
}

// parseCodes parses a comma-separated code list, resolving official names
// from the reference table. Codes missing from the reference are accepted
// with a warning: they become typo candidates on the next resolver pass,
// which is exactly the signal that catches a mistyped code.
func (s *Session) parseCodes(input string) ([]int, []string, bool) {
	parts := strings.Split(input, ",")
	if len(parts) > crosswalk.MaxCodes {
		warnColor.Fprintf(s.Out, "At most %d codes per label\n", crosswalk.MaxCodes)
		return nil, nil, false
	}

	var codes []int
	var names []string
	for _, part := range parts {
		code, err := strconv.Atoi(strings.TrimSpace(part))
		if err != nil {
			warnColor.Fprintf(s.Out, "Invalid code %q\n", strings.TrimSpace(part))
			return nil, nil, false
		}
		codes = append(codes, code)
		if char, ok := s.Ref[code]; ok {
			names = append(names, char.DisplayName)
		} else {
			warnColor.Fprintf(s.Out, "Code %d is not in the reference table\n", code)
			names = append(names, "")
		}
	}

	return codes, names, true
}
