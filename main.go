package main

import "mocap/cmd"

func main() {
	cmd.Execute()
}
