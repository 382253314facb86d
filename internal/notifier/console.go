package notifier

import (
	"context"
	"io"
	"strings"
	"sync"

	"github.com/fatih/color"
)

// Console writes notifications to a terminal, failures in red.
type Console struct {
	mu  sync.Mutex
	w   io.Writer
	bad *color.Color
}

func NewConsole(w io.Writer) *Console {
	return &Console{w: w, bad: color.New(color.FgRed, color.Bold)}
}

func (c *Console) SendText(ctx context.Context, text string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	line := strings.TrimRight(text, "\n") + "\n"
	if strings.HasPrefix(text, prefixForPriority(PriorityError)) {
		_, err := c.bad.Fprint(c.w, line)
		return err
	}
	_, err := io.WriteString(c.w, line)
	return err
}
