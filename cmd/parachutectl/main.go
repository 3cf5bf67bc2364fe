package main

import "github.com/oshokin/safety-parachute/cmd/parachutectl/cmd"

func main() {
	cmd.Execute()
}
