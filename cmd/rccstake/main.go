package main

import (
	"context"
	"fmt"
	"os"

	"github.com/rccstake/rccstake/cmd/rccstake/commands"
)

func main() {
	if err := commands.NewRootCmd().ExecuteContext(context.Background()); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
