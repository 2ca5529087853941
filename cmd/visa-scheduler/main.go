package main

import (
	"fmt"
	"os"

	"github.com/shcheglovnd/us-visa-scheduler-telegram/internal/cli"
)

func main() {
	if err := cli.New().RootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "fatal:", err)
		os.Exit(1)
	}
}
