package speech

import (
	"context"
	"fmt"
	"os/exec"
	"strings"
	"sync"
)

// CommandSynthesizer speaks through an external text-to-speech program such as espeak.
// The text is passed as the last argument.
type CommandSynthesizer struct {
	Command string
	Args    []string
}

// NewCommandSynthesizer parses a command line like "espeak -s 150"
func NewCommandSynthesizer(commandLine string) (*CommandSynthesizer, error) {
	fields := strings.Fields(commandLine)
	if len(fields) == 0 {
		return nil, fmt.Errorf("speech command is empty")
	}
	if _, err := exec.LookPath(fields[0]); err != nil {
		return nil, fmt.Errorf("speech command %s not found: %w", fields[0], err)
	}
	return &CommandSynthesizer{Command: fields[0], Args: fields[1:]}, nil
}

func (c *CommandSynthesizer) Say(ctx context.Context, text string) error {
	args := append(append([]string(nil), c.Args...), text)
	cmd := exec.CommandContext(ctx, c.Command, args...)
	if output, err := cmd.CombinedOutput(); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return fmt.Errorf("%s failed: %w (output: %s)", c.Command, err, strings.TrimSpace(string(output)))
	}
	return nil
}

// RecordingSynthesizer keeps what was said for clients that do their own synthesis
type RecordingSynthesizer struct {
	mu   sync.Mutex
	said []string
}

func (r *RecordingSynthesizer) Say(_ context.Context, text string) error {
	r.mu.Lock()
	r.said = append(r.said, text)
	r.mu.Unlock()
	return nil
}

// Said returns everything recorded so far
func (r *RecordingSynthesizer) Said() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.said...)
}
