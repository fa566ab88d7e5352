package cmd

import (
	"context"
	"fmt"
	"os"
	"time"

	"AgentCore/cmd/ui"

	"github.com/muesli/cancelreader"
	"golang.org/x/term"
)

// monitorCancellation puts the terminal in raw mode and listens for ESC.
// Two ESC presses within 3s call cancel (Session.Interrupt). Returns a
// cleanup function that must be called to restore terminal mode.
func monitorCancellation(ctx context.Context, cancel func()) func() {
	fd := int(os.Stdin.Fd())
	if !term.IsTerminal(fd) {
		return func() {}
	}

	oldState, err := term.MakeRaw(fd)
	if err != nil {
		fmt.Printf("Warning: failed to enable raw mode for cancellation: %v\r\n", err)
		return func() {}
	}
	ui.IsRawMode = true

	cr, err := cancelreader.NewReader(os.Stdin)
	if err != nil {
		_ = term.Restore(fd, oldState)
		ui.IsRawMode = false
		return func() {}
	}

	stopCh := make(chan struct{})
	cleanup := func() {
		close(stopCh)
		cr.Cancel()
		_ = term.Restore(fd, oldState)
		ui.IsRawMode = false
	}

	go func() {
		buf := make([]byte, 1)
		escCount := 0
		lastEscTime := time.Time{}

		for {
			select {
			case <-ctx.Done():
				return
			case <-stopCh:
				return
			default:
				n, err := cr.Read(buf)
				if err != nil || n == 0 {
					return
				}

				select {
				case <-stopCh:
					return
				default:
				}

				if buf[0] == 27 {
					now := time.Now()
					if now.Sub(lastEscTime) > 3*time.Second {
						escCount = 0
					}
					escCount++
					lastEscTime = now

					if escCount == 1 {
						fmt.Print("\r\n⚠️  Press ESC again to interrupt...\r\n")
					} else if escCount >= 2 {
						fmt.Print("\r\n🛑 Interrupting...\r\n")
						cancel()
						return
					}
				} else {
					escCount = 0
				}
			}
		}
	}()

	return cleanup
}
