package config

const DefaultPreset = "default"

// Presets maps a selector to its JSON configuration. Sections left out of a
// preset keep the values of the default one.
var Presets = map[string]string{
	DefaultPreset:  defaultConfig,
	"local.local":  localLocal,
	"local.memory": localMemory,
}

// defaultConfig talks to a job server on this host and runs work here.
const defaultConfig = `{
	"scheduler": {
		"maxJobs": 2,
		"maxProcesses": 4,
		"tickRate": "250ms",
		"reconcileEvery": 40,
		"requestTimeout": "10s",
		"productionMode": true,
		"restartCooldown": "10s",
		"notificationBuffer": 1024,
		"maxNotificationsPerStep": 1024,
		"recentlyCleared": 10000,
		"limitByHostLoad": false,
		"tools": []
	},
	"jobserver": {
		"type": "http",
		"address": "http://localhost:8998",
		"timeout": "10s",
		"retries": 3,
		"retryInterval": "500ms",
		"requestsPerSecond": 50,
		"burst": 10
	},
	"directory": {
		"type": "local",
		"address": "",
		"prefix": "states",
		"name": "",
		"reserveCPU": 0,
		"reserveRAMGB": 1,
		"reserveDiskGB": 1,
		"nodes": [],
		"availableForJobs": true,
		"availableForTasks": true,
		"refreshInterval": "0s",
		"maxAge": "0s"
	},
	"runner": {
		"type": "local",
		"workDir": ".verisched/work",
		"jobCommand": ["verisched-job", "{description}"],
		"taskCommand": ["verisched-task", "{description}"],
		"keepWorkDirs": false,
		"resultFile": "result.json",
		"abortTimeout": "10s"
	},
	"reports": {
		"type": "bolt",
		"path": ".verisched/reports.db",
		"sendTimeout": "10s",
		"maxReportsPerStep": 100,
		"maxAttempts": 0,
		"maxRejections": 3
	},
	"admin": {
		"addr": "localhost:9091"
	}
}`

// localLocal reads node facts from a consul agent on this host.
const localLocal = `{
	"directory": {
		"type": "consul",
		"address": "http://localhost:8500",
		"prefix": "states",
		"availableForJobs": true,
		"availableForTasks": true,
		"refreshInterval": "1s",
		"maxAge": "10s"
	}
}`

// localMemory keeps everything in process: the job server is served by the
// admin endpoint and the cluster is a single configured node. Good for demos.
const localMemory = `{
	"scheduler": {
		"productionMode": false,
		"tickRate": "100ms"
	},
	"jobserver": {
		"type": "memory"
	},
	"directory": {
		"type": "memory",
		"nodes": [
			{"name": "node1", "cpuModel": "generic", "cpus": 4, "ramGB": 8, "diskGB": 100}
		]
	},
	"reports": {
		"type": "memory"
	}
}`
