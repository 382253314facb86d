package main

import (
	"fmt"
	"os"

	"github.com/fatih/color"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		_, _ = fmt.Fprintln(color.Error, color.RedString("error:"), err)
		os.Exit(1)
	}
}
