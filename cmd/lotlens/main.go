package main

import "github.com/MeKo-Tech/lotlens/cmd/lotlens/cmd"

func main() {
	cmd.Execute()
}
