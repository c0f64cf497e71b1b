package main

import (
	"errors"
	"fmt"
	"os"
)

const (
	ExitSuccess    = 0
	ExitError      = 1
	ExitConnection = 2 // backend unreachable
)

func main() {
	if err := execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)

		var connErr *connectionError
		if errors.As(err, &connErr) {
			os.Exit(ExitConnection)
		}
		os.Exit(ExitError)
	}
}
