package main

import "serialmon/cmd"

func main() {
	cmd.Execute()
}
