package stats

const (
	/****************** Resource manager metrics ***************************/
	/*
		nodes that report enough capacity for what is reserved on them
	*/
	ResourceHealthyNodesGauge = "healthyNodes"

	/*
		nodes whose reservations exceed what they currently offer
	*/
	ResourceAilingNodesGauge = "ailingNodes"

	/*
		nodes missing from the last directory listing
	*/
	ResourceDisconnectedNodesGauge = "disconnectedNodes"

	/*
		sum of CPU cores reserved by running jobs and tasks over all nodes
	*/
	ResourceReservedCPUGauge = "reservedCPU"

	/*
		number of directory refreshes that failed (node facts are stale until the next success)
	*/
	ResourceRefreshFailuresCounter = "refreshFailures"

	/*
		job admissions deferred because they would break the task budget guarantee
	*/
	ResourceInvariantRejectionsCounter = "invariantRejections"

	/*
		jobs and tasks selected for cancellation after nodes lost capacity
	*/
	ResourceCancellationsCounter = "resourceCancellations"

	ResourceRefreshLatency_ms = "refreshLatency_ms"

	/****************************** Scheduler loop metrics ****************************************/
	/*
		the amount of time it takes the scheduler to complete one iteration of its loop
	*/
	SchedStepLatency_ms = "schedStepLatency_ms"

	/*
		jobs and tasks known to the loop, by state, at the end of each iteration
	*/
	SchedPendingJobsGauge     = "pendingJobs"
	SchedRunningJobsGauge     = "runningJobs"
	SchedPendingTasksGauge    = "pendingTasks"
	SchedRunningTasksGauge    = "runningTasks"
	SchedUnreportedItemsGauge = "unreportedItems"

	/*
		notifications taken off the queue
	*/
	SchedNotificationsCounter = "notifications"

	/*
		configurations and descriptions that could not be pulled from the server
	*/
	SchedPullFailuresCounter = "pullFailures"

	/*
		jobs and tasks started through the runner
	*/
	SchedStartedJobsCounter  = "startedJobs"
	SchedStartedTasksCounter = "startedTasks"

	/*
		jobs and tasks that reached FINISHED or ERROR
	*/
	SchedFinishedCounter  = "finished"
	SchedFailedCounter    = "failed"
	SchedCancelledCounter = "cancelled"

	/*
		submissions to the server that failed and were kept for a retry
	*/
	SchedReportFailuresCounter = "reportFailures"
	SchedReportsSentCounter    = "reportsSent"
	SchedReportsDroppedCounter = "reportsDropped"

	/*
		full reconciliations against the server's job and task lists
	*/
	SchedReconciliationsCounter        = "reconciliations"
	SchedReconciliationFailuresCounter = "reconciliationFailures"

	/*
		times the loop was reinitialized after an internal error
	*/
	SchedRestartsCounter = "restarts"

	/*
		the length of time the scheduler has been running
	*/
	SchedUptime_ms = "schedUptimeGauge_ms"

	/****************************** Runner metrics ****************************************/
	/*
		runs waiting for a free slot in the local process pool
	*/
	RunnerQueuedGauge = "queuedRuns"

	/*
		runs currently holding a slot in the local process pool
	*/
	RunnerRunningGauge = "runningRuns"

	/****************************** Job server client metrics ****************************************/
	JobServerRequestLatency_ms     = "requestLatency_ms"
	JobServerRequestRetriesCounter = "requestRetries"
)
