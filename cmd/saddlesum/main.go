// SaddleSum scores annotated term sets against a weighted entity list.
package main

import (
	"fmt"
	"os"

	"github.com/MikeSquared-Agency/SaddleSum/cmd/saddlesum/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}
