package main

import "geminichat/cmd/cli/command"

func main() {
	command.Execute()
}
