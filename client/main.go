// Command remus is the Remus client CLI.
package main

import (
	"github.com/geoffjay/remus/client/cmd"
)

func main() {
	cmd.Execute()
}
