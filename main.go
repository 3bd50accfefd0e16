package main

import "github.com/kamusis/lscope/cmd"

func main() {
	cmd.Execute()
}
