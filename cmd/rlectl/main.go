// rlectl -- CLI client for the rled link relay daemon.
package main

import "github.com/hnrck/librle/cmd/rlectl/commands"

func main() {
	commands.Execute()
}
