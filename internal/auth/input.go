package auth

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"
	"time"
)

// InputProvider supplies answers to login challenges. Implementations
// must honor the context; a provider that cannot answer in time
// returns ErrChallengeTimeout.
type InputProvider interface {
	Prompt(ctx context.Context, message string) (string, error)
}

// StdinProvider prompts on the terminal and reads one line.
type StdinProvider struct {
	In      io.Reader
	Out     io.Writer
	Timeout time.Duration
}

func NewStdinProvider(in io.Reader, out io.Writer, timeout time.Duration) *StdinProvider {
	return &StdinProvider{In: in, Out: out, Timeout: timeout}
}

func (p *StdinProvider) Prompt(ctx context.Context, message string) (string, error) {
	if p.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.Timeout)
		defer cancel()
	}

	fmt.Fprintf(p.Out, "%s ", message)

	type result struct {
		line string
		err  error
	}
	ch := make(chan result, 1)
	go func() {
		line, err := bufio.NewReader(p.In).ReadString('\n')
		ch <- result{strings.TrimSpace(line), err}
	}()

	select {
	case <-ctx.Done():
		return "", ErrChallengeTimeout
	case res := <-ch:
		if res.err != nil && res.line == "" {
			return "", fmt.Errorf("read challenge input: %w", res.err)
		}
		return res.line, nil
	}
}
