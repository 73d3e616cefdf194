package main

import "go.peddle.app/authcore/cmd/authctl/cmd"

func main() {
	cmd.Execute()
}
