package main

import "github.com/oshokin/safety-parachute/cmd/parachuted/cmd"

func main() {
	cmd.Execute()
}
