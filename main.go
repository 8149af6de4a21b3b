package main

import "github.com/sergev/floppy/cmd"

func main() {
	cmd.Execute()
}
