package main

import (
	"fmt"
	"log"
	"os"

	"github.com/anjor/palprime"
	"github.com/anjor/palprime/internal/util/stream"
)

func main() {

	// Parse CLI and initialize everything
	// On error it will log.Fatal() on its own
	pp := palprime.NewFromArgv(os.Args)

	if pp.ReadsStdin() {
		inStat, statErr := os.Stdin.Stat()
		if statErr != nil {
			log.Fatalf("unexpected error stat()ing stdIN: %s", statErr)
		}

		if stream.IsTTY(os.Stdin) {
			fmt.Fprint(
				os.Stderr,
				"------\nYou seem to be feeding digits straight from a terminal, an odd choice...\nNevertheless will proceed to read until EOF ( Ctrl+D )\n------\n",
			)
		} else if !inStat.Mode().IsRegular() || inStat.Size() > 16*1024*1024 { // SANCHECK - arbitrary
			// An optimization returns os.ErrInvalid when it can't be applied to the file type
			for _, opt := range stream.ReadOptimizations {
				if err := opt.Action(os.Stdin, inStat); err != nil && err != os.ErrInvalid {
					log.Printf("Failed to apply read optimization hint '%s' to stdIN: %s\n", opt.Name, err)
				}
			}
		}
	}

	processErr := pp.ProcessFiles(nil)
	pp.Destroy()

	pp.OutputSummary()

	if processErr != nil {
		log.Fatalf("Run %s did not complete cleanly: %s", pp.RunID(), processErr)
	}
}
