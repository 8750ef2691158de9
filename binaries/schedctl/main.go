package main

import (
	"os"

	log "github.com/sirupsen/logrus"

	"github.com/verisched/verisched/common/log/hooks"
	"github.com/verisched/verisched/scheduler/client/cli"
)

// CLI binary to inspect a scheduler and its job server
//
//	Supported commands: (see "-h" for all options)
//		nodes
//		jobs
//		tasks [job id]
//		cancel [job id]
//		delete-task [task id]
//	Global flags:
//		--addr [job server base URL]
//		--admin [scheduler admin base URL]
//		--output [table|json]
//		--log_level [<error|info|debug> level and above should be logged]
func main() {
	log.AddHook(hooks.NewContextHook())

	if err := cli.NewSimpleCLIClient(nil).Exec(); err != nil {
		log.Error("Error running schedctl: ", err)
		os.Exit(1)
	}
}
