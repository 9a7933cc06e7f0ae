package main

import "github.com/OpenTraceLab/OpenTraceKNX/cmd/knxunlock/cmd"

func main() {
	cmd.Execute()
}
