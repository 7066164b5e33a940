package main

import "github.com/aweris/layerpack/cmd/layerpack/cmd"

func main() {
	cmd.Execute()
}
