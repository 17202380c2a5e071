// Command router is the CLI and HTTP daemon entrypoint for the LLM
// smart router: its whole control surface, wired together here.
package main

import "os"

func main() {
	os.Exit(Execute())
}
