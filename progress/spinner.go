// spinner.go - Drehender Indikator fuer Wartephasen ohne bekannten Umfang
package progress

import (
	"fmt"
	"strings"
	"time"
)

// Spinner animates a braille glyph next to a fixed message until Stop is
// called. Used for phases without a step count, like model import.
type Spinner struct {
	message      string
	messageWidth int

	frames []string
	frame  int

	ticker  *time.Ticker
	started time.Time
	stopped time.Time
}

func NewSpinner(message string) *Spinner {
	s := &Spinner{
		message: message,
		frames:  []string{"⠋", "⠙", "⠹", "⠸", "⠼", "⠴", "⠦", "⠧", "⠇", "⠏"},
		started: time.Now(),
	}
	go s.spin()
	return s
}

func (s *Spinner) String() string {
	var sb strings.Builder

	if s.message != "" {
		message := strings.TrimSpace(s.message)
		if s.messageWidth > 0 && len(message) > s.messageWidth {
			message = message[:s.messageWidth]
		}

		fmt.Fprintf(&sb, "%s", message)
		if padding := s.messageWidth - sb.Len(); padding > 0 {
			sb.WriteString(strings.Repeat(" ", padding))
		}
		sb.WriteString(" ")
	}

	if s.stopped.IsZero() {
		sb.WriteString(s.frames[s.frame])
		sb.WriteString(" ")
	}

	return sb.String()
}

func (s *Spinner) spin() {
	s.ticker = time.NewTicker(100 * time.Millisecond)
	defer s.ticker.Stop()
	for range s.ticker.C {
		if !s.stopped.IsZero() {
			return
		}
		s.frame = (s.frame + 1) % len(s.frames)
	}
}

func (s *Spinner) Stop() {
	if s.stopped.IsZero() {
		s.stopped = time.Now()
	}
}
