package main

import (
	"os"

	"njoy-gate/cmd"
)

func main() {
	os.Exit(cmd.Execute())
}
