// DepSphere - Weighted type dependency graphs for C# codebases.
//
// DepSphere analyzes C# solutions and projects into a dependency graph of
// declared types, scores every type by its structural weight, and keeps
// the graph fresh as source files change.
package main

import (
	"fmt"
	"os"

	"github.com/Benny93/depsphere-go/cmd"
)

func main() {
	cli := cmd.NewCLI()

	if err := cli.Execute(os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
