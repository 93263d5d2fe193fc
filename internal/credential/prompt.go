package credential

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"
	"sync"
)

// PromptSelector asks for a key on a terminal.
type PromptSelector struct {
	store *Store

	mu  sync.Mutex
	in  *bufio.Reader
	out io.Writer
}

func NewPromptSelector(store *Store, in io.Reader, out io.Writer) *PromptSelector {
	return &PromptSelector{
		store: store,
		in:    bufio.NewReader(in),
		out:   out,
	}
}

func (p *PromptSelector) HasSelectedKey(ctx context.Context) (bool, error) {
	return p.store.HasSelectedKey(ctx)
}

func (p *PromptSelector) OpenSelectKey(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	fmt.Fprint(p.out, "A Gemini API key is required. Paste a key: ")
	line, err := p.in.ReadString('\n')
	if err != nil && (err != io.EOF || strings.TrimSpace(line) == "") {
		return fmt.Errorf("read api key: %w", ErrNoKeySelected)
	}
	return p.store.Set(line)
}
