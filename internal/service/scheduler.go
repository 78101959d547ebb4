package service

import (
	"context"
	"sync"
	"time"
)

// Scheduler runs f once after d without blocking the caller.
type Scheduler interface {
	AfterFunc(d time.Duration, f func())
}

// TimerScheduler schedules callbacks on runtime timers and tracks the ones still pending.
type TimerScheduler struct {
	wg sync.WaitGroup
}

func NewTimerScheduler() *TimerScheduler {
	return &TimerScheduler{}
}

func (s *TimerScheduler) AfterFunc(d time.Duration, f func()) {
	s.wg.Add(1)
	time.AfterFunc(d, func() {
		defer s.wg.Done()
		f()
	})
}

// Wait blocks until every scheduled callback has run or ctx is done.
func (s *TimerScheduler) Wait(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
