// buildmon keeps timed game entities (construction, production and degrading
// resources) moving without an operator watching the screen.
package main

import "os"

func main() {
	os.Exit(execute())
}
