package main

import "github.com/LdDl/rednose/cmd"

func main() {
	cmd.Execute()
}
