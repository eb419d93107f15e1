package main

import (
	"errors"
	"log"
	"os"

	"github.com/jessevdk/go-flags"
	"github.com/viant/mcpgw"
)

func main() {
	if err := mcpgw.Run(os.Args[1:]); err != nil {
		var flagsErr *flags.Error
		if errors.As(err, &flagsErr) && flagsErr.Type == flags.ErrHelp {
			log.Print(err)
			os.Exit(0)
		}
		log.Fatal(err)
	}
}
