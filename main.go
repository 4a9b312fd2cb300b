package main

import (
	"os"

	"flightsync/cmd"
)

func main() {
	os.Exit(cmd.Execute())
}
