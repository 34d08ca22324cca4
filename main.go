package main

import "github.com/resonancehq/resonance/cmd"

func main() {
	cmd.Execute()
}
