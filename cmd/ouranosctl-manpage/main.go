package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra/doc"

	"github.com/arthur-debert/ouranosctl/cmd/ouranosctl"
	"github.com/arthur-debert/ouranosctl/internal/version"
)

func main() {
	rootCmd := ouranosctl.NewRootCmd()

	header := &doc.GenManHeader{
		Title:   "OURANOSCTL",
		Section: "1",
		Source:  "ouranosctl " + version.Version,
		Manual:  "ouranosctl manual",
	}

	if err := doc.GenMan(rootCmd, header, os.Stdout); err != nil {
		fmt.Fprintf(os.Stderr, "Error generating man page: %v\n", err)
		os.Exit(1)
	}
}
