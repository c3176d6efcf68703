package main

import "github.com/tanq16/vdl/cmd"

func main() {
	cmd.Execute()
}
