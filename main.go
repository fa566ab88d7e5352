package main

import "AgentCore/cmd"

func main() {
	cmd.Execute()
}
