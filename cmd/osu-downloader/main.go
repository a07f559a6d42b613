package main

import (
	"os"

	"go-osu-download/cmd/osu-downloader/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
