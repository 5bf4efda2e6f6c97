package main

import (
	"os"

	"erpinsight/cmd/erpctl/commands"
)

func main() {
	if err := commands.Execute(); err != nil {
		os.Exit(1)
	}
}
