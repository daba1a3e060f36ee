package main

import (
	"os"

	"github.com/dgellow/soporify/cmd/soporify/cmd"
)

var BuildVersion = "dev"

func main() {
	if err := cmd.Execute(BuildVersion); err != nil {
		os.Exit(1)
	}
}
