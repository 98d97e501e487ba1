package main

import "github.com/SamiSolomon/mobile/cmd/posctl/commands"

func main() {
	commands.Execute()
}
