package scan

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"
)

// Raw is an undecoded queue entry: a payload plus where it came from.
type Raw struct {
	Payload string
	Source  string
}

// LineSource feeds newline-delimited decoded payloads from an external
// QR decoder (piped stdin, keyboard-wedge scanner) into the scan queue.
type LineSource struct {
	r   io.Reader
	out chan<- Raw
}

func NewLineSource(r io.Reader, out chan<- Raw) *LineSource {
	return &LineSource{r: r, out: out}
}

// Run pumps lines until EOF or ctx cancellation. EOF is normal: a
// detached decoder leaves admin injection as the only scan source.
func (s *LineSource) Run(ctx context.Context) error {
	scanner := bufio.NewScanner(s.r)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case s.out <- Raw{Payload: line, Source: SourceScanner}:
		}
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("failed to read scan input: %w", err)
	}
	return nil
}
