package main

import (
	"fmt"
	"os"

	"github.com/hackshare/clustercomm/cmd/clustercommd/commands"
)

func main() {
	if err := commands.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
