// The main package for the archiver executable.
package main

import (
	"github.com/JakeFAU/edgar-exhibit-archiver/cmd"
)

func main() {
	cmd.Execute()
}
