package ports

import "time"

type SchedulerService interface {
	Start()
	Stop()

	// ScheduleTask runs task every interval and returns the function that
	// cancels it.
	ScheduleTask(interval time.Duration, immediate bool, task func()) (func(), error)
	// ScheduleTaskOnce runs task once after delay and returns the function
	// that cancels it if it did not run yet.
	ScheduleTaskOnce(delay time.Duration, task func()) (func(), error)
}
