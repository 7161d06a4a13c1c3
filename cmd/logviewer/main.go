// Command logviewer serves live views of the log files in one directory over
// HTTP, streaming appends to browsers as Server-Sent Events or WebSocket
// frames.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
)

func main() {
	cmd := newRootCommand()
	if err := cmd.Execute(); err != nil {
		if !errors.Is(err, context.Canceled) {
			fmt.Fprintln(os.Stderr, err)
		}
		os.Exit(1)
	}
}
