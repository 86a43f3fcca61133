package main

import "github.com/tmwalaszek/lookout/cmd"

func main() {
	cmd.Execute()
}
