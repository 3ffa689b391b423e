package main

import (
	"os"

	"github.com/JakeFAU/wikicorpus/cmd"
)

func main() {
	os.Exit(cmd.Execute())
}
