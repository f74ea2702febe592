package main

import (
	"errors"
	"fmt"
	"os"

	"pos_data_layer/internal"
)

func main() {
	if err := internal.Run(); err != nil {
		if !errors.Is(err, internal.ErrCommandFailed) {
			fmt.Fprintln(os.Stderr, err)
		}
		os.Exit(1)
	}
}
