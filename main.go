// Command workflow-backlog-projection projects warehouse workflow backlogs.
// All command wiring lives in cmd/.
package main

import "github.com/guspollitzer/workflow-backlog-projection/cmd"

func main() {
	cmd.Execute()
}
