package main

import (
	"fmt"
	"os"
	"runtime/debug"

	"github.com/quatton/qfold/apps/qfold/cmd"
)

func main() {
	defer func() {
		if r := recover(); r != nil {
			fmt.Fprintf(os.Stderr, "qfold crashed: %v\n", r)
			if os.Getenv("QFOLD_DEBUG") != "" {
				debug.PrintStack()
			}
			os.Exit(2)
		}
	}()

	cmd.Execute()
}
