package main

import "github.com/enduroplan/fueltrace-service-go/cmd"

func main() {
	cmd.Execute()
}
