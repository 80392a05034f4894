package main

import "github.com/frahmantamala/institution-management/cmd"

func main() {
	cmd.Execute()
}
