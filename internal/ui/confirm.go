package ui

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/netops-tools/panos-ike/pkg/types"
)

// ConfirmationResult represents the result of a confirmation prompt
type ConfirmationResult struct {
	Approved bool
	TimedOut bool
	Error    error
}

// Confirmer handles user confirmation prompts
type Confirmer struct {
	config types.Confirmation
	in     io.Reader
	out    io.Writer
}

// NewConfirmerWithIO creates a confirmer on the given streams
func NewConfirmerWithIO(config types.Confirmation, in io.Reader, out io.Writer) *Confirmer {
	return &Confirmer{
		config: config,
		in:     in,
		out:    out,
	}
}

// Confirm prompts the user for confirmation with the given message
func (c *Confirmer) Confirm(ctx context.Context, message string) *ConfirmationResult {
	if !c.IsInteractive() {
		return &ConfirmationResult{Approved: !c.config.DefaultDeny}
	}
	return c.promptUser(ctx, message)
}

// ConfirmOperation prompts for confirmation of a specific operation
func (c *Confirmer) ConfirmOperation(ctx context.Context, operation, resource string, details map[string]interface{}) *ConfirmationResult {
	return c.Confirm(ctx, c.buildOperationMessage(operation, resource, details))
}

// ConfirmBatchOperation asks once for a list of items
func (c *Confirmer) ConfirmBatchOperation(ctx context.Context, operation string, items []string) *ConfirmationResult {
	if len(items) == 0 {
		return &ConfirmationResult{Error: fmt.Errorf("no items to process")}
	}
	if len(items) == 1 {
		return c.ConfirmOperation(ctx, operation, items[0], nil)
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Confirm %s for %d items:", operation, len(items))
	const showCount = 5
	for i, item := range items {
		if i >= showCount {
			fmt.Fprintf(&b, "\n  ... and %d more", len(items)-showCount)
			break
		}
		fmt.Fprintf(&b, "\n  - %s", item)
	}
	b.WriteString("\nProceed?")

	return c.Confirm(ctx, b.String())
}

func (c *Confirmer) promptUser(ctx context.Context, message string) *ConfirmationResult {
	var promptCtx context.Context
	var cancel context.CancelFunc
	if c.config.Timeout > 0 {
		promptCtx, cancel = context.WithTimeout(ctx, c.config.Timeout)
	} else {
		promptCtx, cancel = context.WithCancel(ctx)
	}
	defer cancel()

	timeoutMsg := ""
	if c.config.Timeout > 0 {
		timeoutMsg = fmt.Sprintf(" (%v)", c.config.Timeout)
	}
	defaultHint := "[Y/n]"
	if c.config.DefaultDeny {
		defaultHint = "[y/N]"
	}
	fmt.Fprintf(c.out, "%s %s%s ", message, defaultHint, timeoutMsg)

	// Buffered so the reader never blocks after a timeout
	responseChan := make(chan string, 1)
	errorChan := make(chan error, 1)

	go func() {
		response, err := bufio.NewReader(c.in).ReadString('\n')
		if err != nil && !(err == io.EOF && response != "") {
			errorChan <- fmt.Errorf("failed to read user input: %w", err)
			return
		}
		responseChan <- strings.TrimSpace(response)
	}()

	select {
	case <-promptCtx.Done():
		fmt.Fprintln(c.out, "\nTimeout - using default response")
		return &ConfirmationResult{
			Approved: !c.config.DefaultDeny,
			TimedOut: true,
		}
	case err := <-errorChan:
		return &ConfirmationResult{Error: err}
	case response := <-responseChan:
		return &ConfirmationResult{Approved: c.parseResponse(response)}
	}
}

func (c *Confirmer) parseResponse(response string) bool {
	response = strings.ToLower(strings.TrimSpace(response))
	if response == "" {
		return !c.config.DefaultDeny
	}

	switch response {
	case "y", "yes", "true", "1":
		return true
	case "n", "no", "false", "0":
		return false
	default:
		fmt.Fprintf(c.out, "Invalid response '%s', using default\n", response)
		return !c.config.DefaultDeny
	}
}

// buildOperationMessage lists details in key order with secrets masked
func (c *Confirmer) buildOperationMessage(operation, resource string, details map[string]interface{}) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Confirm: %s '%s'", operation, resource)

	if len(details) > 0 {
		keys := make([]string, 0, len(details))
		for k := range details {
			keys = append(keys, k)
		}
		sort.Strings(keys)

		b.WriteString(" with:")
		for _, key := range keys {
			if isSensitiveKey(key) {
				fmt.Fprintf(&b, "\n  %s: [MASKED]", key)
			} else {
				fmt.Fprintf(&b, "\n  %s: %v", key, details[key])
			}
		}
	}

	b.WriteString("?")
	return b.String()
}

func isSensitiveKey(key string) bool {
	sensitiveKeys := []string{
		"password", "secret", "key", "token", "auth", "credential",
		"private", "passphrase",
	}

	keyLower := strings.ToLower(key)
	for _, sensitive := range sensitiveKeys {
		if strings.Contains(keyLower, sensitive) {
			return true
		}
	}
	return false
}

// DisplayWarning prints a warning on the prompt stream
func (c *Confirmer) DisplayWarning(message string) {
	fmt.Fprintf(c.out, "WARNING: %s\n", message)
}

// IsInteractive returns true if the confirmer will prompt
func (c *Confirmer) IsInteractive() bool {
	return !c.config.BatchMode && !c.config.AutoApprove
}
