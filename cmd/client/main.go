package main

import "paysync/cmd/client/cmd"

func main() {
	cmd.Execute()
}
