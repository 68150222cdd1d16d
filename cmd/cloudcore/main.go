package main

import "github.com/x8labs/cloudcore/cmd/cloudcore/cmd"

func main() {
	cmd.Execute()
}
