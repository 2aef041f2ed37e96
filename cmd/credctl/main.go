package main

import (
	"fmt"
	"os"

	"github.com/dmitrijs2005/authkeeper/internal/credctl"
)

func main() {

	app, err := credctl.NewApp(nil, os.Stdin, os.Stdout)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	if err := app.Run(os.Args[1:]); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}

}
