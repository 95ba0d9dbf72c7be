package main

import "github.com/tanq16/splitget/cmd"

func main() {
	cmd.Execute()
}
