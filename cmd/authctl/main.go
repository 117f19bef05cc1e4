package main

import (
	"context"
	"fmt"
	"os"

	"github.com/dmitrijs2005/folioguard/internal/authctl"
)

func main() {
	root := authctl.NewRootCommand(authctl.OpenCore, os.Stdin)
	if err := root.ExecuteContext(context.Background()); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}
