package progress

import (
	"fmt"
	"math"
	"os"
	"strings"
	"time"

	"golang.org/x/term"
)

// Bar renders denoising progress as completed steps out of a total.
type Bar struct {
	message      string
	messageWidth int

	maxValue     int64
	currentValue int64

	started time.Time

	rate    float64
	statted time.Time
	statval int64
}

func NewBar(message string, maxValue int64) *Bar {
	return &Bar{
		message:      message,
		messageWidth: -1,
		maxValue:     maxValue,
		started:      time.Now(),
	}
}

// formatDuration limits the rendering of a time.Duration to 2 units
func formatDuration(d time.Duration) string {
	if d >= 100*time.Hour {
		return "99h+"
	}

	if d >= time.Hour {
		return fmt.Sprintf("%dh%dm", int(d.Hours()), int(d.Minutes())%60)
	}

	return d.Round(time.Second).String()
}

func (b *Bar) String() string {
	termWidth, _, err := term.GetSize(int(os.Stderr.Fd()))
	if err != nil {
		termWidth = 80
	}

	var pre, mid, suf strings.Builder

	if b.message != "" {
		message := strings.TrimSpace(b.message)
		if b.messageWidth > 0 && len(message) > b.messageWidth {
			message = message[:b.messageWidth]
		}

		fmt.Fprintf(&pre, "%s", message)
		if b.messageWidth-pre.Len() >= 0 {
			pre.WriteString(strings.Repeat(" ", b.messageWidth-pre.Len()))
		}

		pre.WriteString(" ")
	}

	fmt.Fprintf(&pre, "%3.0f%% ", math.Floor(b.percent()))

	fmt.Fprintf(&suf, "(%d/%d steps", b.currentValue, b.maxValue)

	rate := b.stepRate()
	if b.currentValue > 0 && b.currentValue < b.maxValue && rate > 0 {
		fmt.Fprintf(&suf, ", %.1f it/s", rate)
	}

	fmt.Fprintf(&suf, ")")

	var timing string
	if b.currentValue > 0 && b.currentValue < b.maxValue && rate > 0 {
		remaining := time.Duration(float64(b.maxValue-b.currentValue) / rate * float64(time.Second))
		timing = fmt.Sprintf("[%s:%s]", formatDuration(time.Since(b.started)), formatDuration(remaining))
	}

	// 36 is the maximum width for the stats on the right of the bar
	if suf.Len() < 36 {
		suf.WriteString(strings.Repeat(" ", 36-suf.Len()-len(timing)))
	}

	suf.WriteString(timing)

	// add 3 extra spaces: 2 boundary characters and 1 space at the end
	f := termWidth - pre.Len() - suf.Len() - 3
	n := int(float64(f) * b.percent() / 100)

	if f > 0 {
		mid.WriteString("▕")
		mid.WriteString(strings.Repeat("█", n))
		if f-n > 0 {
			mid.WriteString(strings.Repeat(" ", f-n))
		}
		mid.WriteString("▏")
	}

	return pre.String() + mid.String() + suf.String()
}

func (b *Bar) Set(value int64) {
	if value >= b.maxValue {
		value = b.maxValue
	}

	b.currentValue = value
}

func (b *Bar) percent() float64 {
	if b.maxValue > 0 {
		return float64(b.currentValue) / float64(b.maxValue) * 100
	}

	return 0
}

// stepRate recomputes the steps-per-second estimate at most once a second.
func (b *Bar) stepRate() float64 {
	if time.Since(b.statted) < time.Second {
		return b.rate
	}

	if !b.statted.IsZero() {
		b.rate = float64(b.currentValue-b.statval) / time.Since(b.statted).Seconds()
	}
	b.statval = b.currentValue
	b.statted = time.Now()

	return b.rate
}
