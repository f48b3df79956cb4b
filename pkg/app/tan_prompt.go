package app

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/pkg/errors"

	"github.com/evgeny-myasishchev/ledger.fints-fetcher/pkg/banks/fints"
)

type consoleTanHandler struct {
	in  *bufio.Reader
	out io.Writer
}

func (h *consoleTanHandler) PromptTan(ctx context.Context, challenge fints.TanChallenge) (string, error) {
	fmt.Fprintf(h.out, "%v\nEnter TAN: ", challenge.Text)
	line, err := h.in.ReadString('\n')
	if err != nil && err != io.EOF {
		return "", errors.Wrap(err, "Failed to read TAN")
	}
	tan := strings.TrimSpace(line)
	if tan == "" {
		return "", errors.New("Empty TAN")
	}
	return tan, nil
}

func (h *consoleTanHandler) ConfirmInApp(ctx context.Context, challenge fints.TanChallenge) {
	fmt.Fprintf(h.out, "%v\nPlease confirm the login in your banking app...\n", challenge.Text)
}

// NewConsoleTanHandler creates a TAN handler that talks to the user via console
func NewConsoleTanHandler(in io.Reader, out io.Writer) fints.TanHandler {
	return &consoleTanHandler{in: bufio.NewReader(in), out: out}
}
