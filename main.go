package main

import (
	"context"
	"fmt"
	"os"

	"github.com/couchmongo/bridge/cmd"
)

func main() {
	root := cmd.NewRootCmd()
	if err := root.ExecuteContext(context.Background()); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
