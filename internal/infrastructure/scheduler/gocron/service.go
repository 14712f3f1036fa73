package scheduler

import (
	"fmt"
	"time"

	"github.com/ark-network/coinjoin/internal/core/ports"
	"github.com/go-co-op/gocron"
)

type service struct {
	scheduler *gocron.Scheduler
}

func NewScheduler() ports.SchedulerService {
	svc := gocron.NewScheduler(time.UTC)
	return &service{svc}
}

func (s *service) Start() {
	s.scheduler.StartAsync()
}

func (s *service) Stop() {
	s.scheduler.Stop()
}

func (s *service) ScheduleTask(
	interval time.Duration, immediate bool, task func(),
) (func(), error) {
	if interval <= 0 {
		return nil, fmt.Errorf("invalid interval %s", interval)
	}

	sched := s.scheduler.Every(interval)
	if !immediate {
		sched = sched.WaitForSchedule()
	}
	j, err := sched.Do(task)
	if err != nil {
		return nil, err
	}
	return s.cancel(j), nil
}

func (s *service) ScheduleTaskOnce(delay time.Duration, task func()) (func(), error) {
	if delay < 0 {
		return nil, fmt.Errorf("cannot schedule task in the past")
	}
	if delay == 0 {
		j, err := s.scheduler.Every(time.Second).LimitRunsTo(1).Do(task)
		if err != nil {
			return nil, err
		}
		return s.cancel(j), nil
	}

	j, err := s.scheduler.Every(delay).WaitForSchedule().LimitRunsTo(1).Do(task)
	if err != nil {
		return nil, err
	}
	return s.cancel(j), nil
}

func (s *service) cancel(job *gocron.Job) func() {
	return func() {
		s.scheduler.RemoveByReference(job)
	}
}
