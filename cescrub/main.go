// Command cescrub drives simulated copy engines with memsets, copies and page
// scrubbing.
package main

import (
	"github.com/sarchlab/copyengine/cescrub/cmd"
	"github.com/sarchlab/copyengine/sim"
)

func main() {
	// Several runs may append to the same trace database.
	sim.UseParallelIDGenerator()

	cmd.Execute()
}
