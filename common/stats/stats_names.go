package stats

/*
This file defines all the metrics being collected. As new metrics are added please follow this pattern.
*/

const (
	/************************* Queue metrics **************************/
	/*
		number of jobs accepted by Submit
	*/
	QueueJobsAddedCounter = "jobsAddedCounter"

	/*
		number of Driver.Submit calls made by the queue loop (includes resubmissions)
	*/
	QueueSubmitAttemptsCounter = "submitAttemptsCounter"

	/*
		number of Driver.Submit calls that returned a spawn error
	*/
	QueueSpawnFailuresCounter = "spawnFailuresCounter"

	/*
		number of times a job was put back to waiting after an Exit
	*/
	QueueResubmitsCounter = "resubmitsCounter"

	/*
		number of jobs that reached Done
	*/
	QueueJobsDoneCounter = "jobsDoneCounter"

	/*
		number of jobs that exhausted their submit budget
	*/
	QueueJobsFailedCounter = "jobsFailedCounter"

	/*
		number of jobs that ended UserKilled
	*/
	QueueJobsKilledCounter = "jobsKilledCounter"

	/*
		number of jobs killed for running past max duration or the stop time
	*/
	QueueJobsExpiredCounter = "jobsExpiredCounter"

	/*
		number of Driver.Kill calls that returned an error
	*/
	QueueKillErrorsCounter = "killErrorsCounter"

	/*
		number of Driver calls that reported the driver unavailable
	*/
	QueueDriverFaultsCounter = "driverFaultsCounter"

	/*
		number of Driver.Status or Driver.Submit calls that ran past the call timeout
	*/
	QueueCallTimeoutsCounter = "callTimeoutsCounter"

	/*
		number of jobs reported Done by the driver that failed verification
	*/
	QueueDoneCheckFailuresCounter = "doneCheckFailuresCounter"

	/*
		number of times the retry hook gave a job a fresh submit budget
	*/
	QueueRetryResetsCounter = "retryResetsCounter"

	/*
		jobs currently in each of the non-terminal states
	*/
	QueueWaitingGauge = "waitingGauge"
	QueuePendingGauge = "pendingGauge"
	QueueRunningGauge = "runningGauge"

	/*
		1 while the queue is paused, 0 otherwise
	*/
	QueuePausedGauge = "pausedGauge"

	/*
		time spent in one iteration of the queue loop
	*/
	QueueLoopLatency_ms = "loopLatency_ms"

	/*
		wall time in ms of jobs that reached Done, submission to completion (histogram)
	*/
	QueueJobRunLatency_ms = "jobRunLatency_ms"

	/************************* Driver metrics **************************/
	/*
		number of Submit calls that started a job
	*/
	DriverSubmitCounter = "submitCounter"

	/*
		number of Submit calls refused for lack of a free host
	*/
	DriverNoCapacityCounter = "noCapacityCounter"

	/*
		number of Kill calls
	*/
	DriverKillCounter = "killCounter"

	/*
		number of times the cluster driver re-read the batch system's job table
	*/
	DriverQueryRefreshCounter = "queryRefreshCounter"

	/*
		time spent running the batch system's query command
	*/
	DriverQueryLatency_ms = "queryLatency_ms"

	/*
		number of batch system commands that failed after all retries
	*/
	DriverCommandFailuresCounter = "commandFailuresCounter"

	/*
		jobs currently tracked by the driver
	*/
	DriverTrackedJobsGauge = "trackedJobsGauge"

	/************************* Execer metrics **************************/
	/*
		number of OS processes started
	*/
	ExecerProcessesStartedCounter = "processesStartedCounter"

	/*
		number of OS processes that could not be started
	*/
	ExecerStartFailuresCounter = "startFailuresCounter"

	/************************* Run model metrics **************************/
	/*
		number of realizations that succeeded, failed or were killed in the last run
	*/
	RunModelSucceededGauge = "succeededGauge"
	RunModelFailedGauge    = "failedGauge"
	RunModelKilledGauge    = "killedGauge"

	/*
		number of realizations that ended Failed or UserKilled, counted as they end
	*/
	RunModelRealizationsLostCounter = "realizationsLostCounter"

	/*
		wall time of a whole run
	*/
	RunModelRunLatency_ms = "runLatency_ms"

	/*
		milliseconds since the ensemble binary started
	*/
	EnsembleUptime_ms = "ensembleUptimeGauge_ms"
)
