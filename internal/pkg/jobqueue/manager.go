package jobqueue

import (
	"strconv"
	"sync"
	"time"

	"github.com/gofiber/fiber/v2/log"

	"github.com/habitflow/habitflow/app/models"
	"github.com/habitflow/habitflow/internal/pkg/database"
	"github.com/habitflow/habitflow/internal/pkg/env"
)

// Manager manages the global job queue and background tasks
type Manager struct {
	queue          *Queue
	reminderTicker *time.Ticker
	stopCh         chan struct{}
	wg             sync.WaitGroup
	mu             sync.Mutex
	running        bool

	lastReminderDay string
}

var (
	globalManager *Manager
	managerOnce   sync.Once
)

// GetManager returns the global job queue manager (singleton)
func GetManager() *Manager {
	managerOnce.Do(func() {
		workerCount := 5
		if v, err := strconv.Atoi(env.GetEnv("JOB_QUEUE_WORKERS", "")); err == nil && v > 0 {
			workerCount = v
		}

		globalManager = &Manager{
			queue:  NewQueue(workerCount),
			stopCh: make(chan struct{}),
		}
	})
	return globalManager
}

// GetQueue returns the managed job queue
func (m *Manager) GetQueue() *Queue {
	return m.queue
}

// Start starts the job queue and background tasks
func (m *Manager) Start() {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.running {
		return
	}

	// Recreate stop channel for each start cycle so manager can be restarted safely.
	m.stopCh = make(chan struct{})
	m.running = true
	log.Info("[JobQueue Manager] Starting job queue and background tasks")

	m.queue.Start()

	// The reminder worker checks every few minutes whether the configured
	// reminder hour has been reached for the current day.
	m.reminderTicker = time.NewTicker(5 * time.Minute)
	m.wg.Add(1)
	go m.reminderWorker()

	log.Info("[JobQueue Manager] Started successfully")
}

// Stop stops the job queue and background tasks
func (m *Manager) Stop() {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.running {
		return
	}

	log.Info("[JobQueue Manager] Stopping job queue and background tasks...")

	if m.reminderTicker != nil {
		m.reminderTicker.Stop()
	}

	// Signal workers to stop
	close(m.stopCh)
	m.stopCh = nil
	m.running = false

	// Wait for background workers to finish
	m.wg.Wait()

	m.queue.Stop()

	log.Info("[JobQueue Manager] Stopped successfully")
}

// reminderWorker fans out one daily_reminder job per user once a day,
// after the configured hour.
func (m *Manager) reminderWorker() {
	defer m.wg.Done()
	log.Info("[JobQueue Manager] Started daily reminder worker")

	for {
		select {
		case <-m.stopCh:
			log.Info("[JobQueue Manager] Daily reminder worker stopping")
			return
		case <-m.reminderTicker.C:
			if err := m.dispatchRemindersOnce(time.Now()); err != nil {
				log.Errorf("[JobQueue Manager] Reminder dispatch error: %v", err)
			}
		}
	}
}

func (m *Manager) dispatchRemindersOnce(now time.Time) error {
	hour := 18
	if v, err := strconv.Atoi(env.GetEnv("REMINDER_HOUR", "")); err == nil && v >= 0 && v < 24 {
		hour = v
	}
	if now.Hour() < hour {
		return nil
	}

	day := now.Format("2006-01-02")
	if m.lastReminderDay == day {
		return nil
	}

	// Only users with at least one unarchived habit get a reminder.
	var userIDs []uint
	err := database.GetDB().Model(&models.Habit{}).
		Where("archived = ?", false).
		Distinct().
		Pluck("user_id", &userIDs).Error
	if err != nil {
		return err
	}

	for _, id := range userIDs {
		if _, err := m.queue.EnqueueJob(JobTypeDailyReminder, DailyReminderJobPayload{
			UserID: id,
			Day:    day,
		}.ToMap()); err != nil {
			log.Errorf("[JobQueue Manager] Failed to enqueue reminder for user %d: %v", id, err)
		}
	}

	m.lastReminderDay = day
	log.Infof("[JobQueue Manager] Dispatched daily reminders for %s to %d user(s)", day, len(userIDs))
	return nil
}

// IsRunning returns whether the manager is currently running
func (m *Manager) IsRunning() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.running
}
