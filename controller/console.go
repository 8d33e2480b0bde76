package controller

import (
	"bufio"
	"io"
)

// Console turns a line-oriented reader (normally os.Stdin) into a channel
// the control loop can select on. The reader goroutine exits and closes
// the channel on EOF.
type Console struct {
	lines chan string
}

func NewConsole(r io.Reader) *Console {
	c := &Console{lines: make(chan string)}
	go func() {
		defer close(c.lines)
		sc := bufio.NewScanner(r)
		for sc.Scan() {
			c.lines <- sc.Text()
		}
	}()
	return c
}

func (c *Console) Lines() <-chan string { return c.lines }
