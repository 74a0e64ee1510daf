package scheduler

import (
	"context"
	"log/slog"
	"os"
	"testing"
	"time"
)

func TestScheduler_IsRunning(t *testing.T) {
	log := slog.Default()
	s := NewScheduler(log)

	// Initially should not be running
	if s.IsRunning() {
		t.Error("New scheduler should not be running")
	}

	s.mu.Lock()
	s.running = true
	s.mu.Unlock()

	if !s.IsRunning() {
		t.Error("Scheduler should be running after setting running=true")
	}

	s.mu.Lock()
	s.running = false
	s.mu.Unlock()

	if s.IsRunning() {
		t.Error("Scheduler should not be running after setting running=false")
	}
}

func TestScheduler_ListTasks(t *testing.T) {
	log := slog.Default()
	s := NewScheduler(log)

	tasks := s.ListTasks()
	if len(tasks) != 0 {
		t.Errorf("New scheduler should have 0 tasks, got %d", len(tasks))
	}

	s.mu.Lock()
	s.tasks["task1"] = 1
	s.tasks["task2"] = 2
	s.mu.Unlock()

	tasks = s.ListTasks()
	if len(tasks) != 2 {
		t.Errorf("Expected 2 tasks, got %d", len(tasks))
	}

	hasTask1, hasTask2 := false, false
	for _, name := range tasks {
		if name == "task1" {
			hasTask1 = true
		}
		if name == "task2" {
			hasTask2 = true
		}
	}

	if !hasTask1 {
		t.Error("Expected task1 in list")
	}
	if !hasTask2 {
		t.Error("Expected task2 in list")
	}
}

func TestNewScheduler(t *testing.T) {
	log := slog.Default()
	s := NewScheduler(log)

	if s == nil {
		t.Fatal("NewScheduler returned nil")
	}
	if s.cron == nil {
		t.Error("Scheduler cron should not be nil")
	}
	if s.tasks == nil {
		t.Error("Scheduler tasks map should not be nil")
	}
	if s.running {
		t.Error("New scheduler should not be running")
	}
}

func TestScheduler_GetTaskInfo_Empty(t *testing.T) {
	log := slog.Default()
	s := NewScheduler(log)

	info := s.GetTaskInfo()
	if len(info) != 0 {
		t.Errorf("GetTaskInfo should return empty result, got %d items", len(info))
	}
}

func TestScheduler_GetTaskInfo_WithTasks(t *testing.T) {
	log := slog.Default()
	s := NewScheduler(log)

	dummyTask := func(ctx context.Context) error {
		return nil
	}

	err := s.AddCronTask("test-task", "@every 1h", dummyTask)
	if err != nil {
		t.Fatalf("Failed to add cron task: %v", err)
	}

	info := s.GetTaskInfo()
	if len(info) != 1 {
		t.Fatalf("GetTaskInfo should return 1 item, got %d", len(info))
	}

	if info[0].Name != "test-task" {
		t.Errorf("TaskInfo.Name = %q, want %q", info[0].Name, "test-task")
	}
	if info[0].Schedule == "" {
		t.Error("TaskInfo.Schedule should not be empty")
	}
}

func TestScheduler_AddCronTask_ReplaceExisting(t *testing.T) {
	log := slog.Default()
	s := NewScheduler(log)

	dummyTask := func(ctx context.Context) error {
		return nil
	}

	err := s.AddCronTask("task1", "@every 1h", dummyTask)
	if err != nil {
		t.Fatalf("Failed to add task: %v", err)
	}

	tasks := s.ListTasks()
	if len(tasks) != 1 {
		t.Fatalf("Expected 1 task, got %d", len(tasks))
	}

	// Replace with a new task (same name)
	err = s.AddCronTask("task1", "@every 30m", dummyTask)
	if err != nil {
		t.Fatalf("Failed to replace task: %v", err)
	}

	tasks = s.ListTasks()
	if len(tasks) != 1 {
		t.Fatalf("Expected 1 task after replace, got %d", len(tasks))
	}
}

func TestScheduler_AddIntervalTask_ReplaceExisting(t *testing.T) {
	log := slog.Default()
	s := NewScheduler(log)

	dummyTask := func(ctx context.Context) error {
		return nil
	}

	err := s.AddIntervalTask("task1", 1*time.Hour, dummyTask)
	if err != nil {
		t.Fatalf("Failed to add task: %v", err)
	}

	err = s.AddIntervalTask("task1", 30*time.Minute, dummyTask)
	if err != nil {
		t.Fatalf("Failed to replace task: %v", err)
	}

	tasks := s.ListTasks()
	if len(tasks) != 1 {
		t.Fatalf("Expected 1 task after replace, got %d", len(tasks))
	}
}

func TestScheduler_AddCronTask_InvalidSchedule(t *testing.T) {
	log := slog.Default()
	s := NewScheduler(log)

	dummyTask := func(ctx context.Context) error {
		return nil
	}

	err := s.AddCronTask("task1", "not a valid schedule", dummyTask)
	if err == nil {
		t.Error("Expected error for invalid schedule, got nil")
	}

	tasks := s.ListTasks()
	if len(tasks) != 0 {
		t.Errorf("Expected 0 tasks after failed add, got %d", len(tasks))
	}
}

func TestScheduler_RemoveTask(t *testing.T) {
	log := slog.Default()
	s := NewScheduler(log)

	err := s.AddIntervalTask("task1", time.Hour, func(ctx context.Context) error { return nil })
	if err != nil {
		t.Fatalf("Failed to add task: %v", err)
	}

	s.RemoveTask("task1")
	if len(s.ListTasks()) != 0 {
		t.Error("Expected 0 tasks after remove")
	}

	// Removing an unknown task is a no-op
	s.RemoveTask("missing")
}

func TestAddScheduledTask_CronOverridesInterval(t *testing.T) {
	log := slog.Default()
	s := NewScheduler(log)

	task := func(ctx context.Context) error { return nil }

	err := addScheduledTask(s, log, "test_cron", "0 0 2 * * *", 5*time.Minute, task)
	if err != nil {
		t.Fatalf("addScheduledTask with cron schedule failed: %v", err)
	}

	tasks := s.ListTasks()
	if len(tasks) != 1 {
		t.Fatalf("expected 1 task, got %d", len(tasks))
	}
	if tasks[0] != "test_cron" {
		t.Errorf("task name = %q, want test_cron", tasks[0])
	}
}

func TestAddScheduledTask_FallbackToInterval(t *testing.T) {
	log := slog.Default()
	s := NewScheduler(log)

	task := func(ctx context.Context) error { return nil }

	err := addScheduledTask(s, log, "test_interval", "", 5*time.Minute, task)
	if err != nil {
		t.Fatalf("addScheduledTask with interval fallback failed: %v", err)
	}

	tasks := s.ListTasks()
	if len(tasks) != 1 {
		t.Fatalf("expected 1 task, got %d", len(tasks))
	}
	if tasks[0] != "test_interval" {
		t.Errorf("task name = %q, want test_interval", tasks[0])
	}
}

func TestNewConfig(t *testing.T) {
	envVars := []string{
		"SCHEDULER_ENABLED",
		"REVIEW_EXPIRY_INTERVAL_MS",
		"STATS_LOG_INTERVAL_MS",
		"REVIEW_EXPIRY_SCHEDULE",
		"STATS_LOG_SCHEDULE",
	}
	origVals := make(map[string]string)
	hadOrig := make(map[string]bool)

	for _, key := range envVars {
		val, exists := os.LookupEnv(key)
		origVals[key] = val
		hadOrig[key] = exists
	}

	defer func() {
		for _, key := range envVars {
			if hadOrig[key] {
				os.Setenv(key, origVals[key])
			} else {
				os.Unsetenv(key)
			}
		}
	}()

	t.Run("default values when no env vars set", func(t *testing.T) {
		for _, key := range envVars {
			os.Unsetenv(key)
		}

		cfg := NewConfig()

		if !cfg.Enabled {
			t.Error("Enabled should default to true")
		}
		if cfg.ReviewExpiryInterval != time.Hour {
			t.Errorf("ReviewExpiryInterval = %v, want 1h", cfg.ReviewExpiryInterval)
		}
		if cfg.StatsLogInterval != 5*time.Minute {
			t.Errorf("StatsLogInterval = %v, want 5m", cfg.StatsLogInterval)
		}
		if cfg.ReviewExpirySchedule != "" {
			t.Errorf("ReviewExpirySchedule should be empty by default, got %q", cfg.ReviewExpirySchedule)
		}
		if cfg.StatsLogSchedule != "" {
			t.Errorf("StatsLogSchedule should be empty by default, got %q", cfg.StatsLogSchedule)
		}
	})

	t.Run("custom values from env vars", func(t *testing.T) {
		os.Setenv("SCHEDULER_ENABLED", "false")
		os.Setenv("REVIEW_EXPIRY_INTERVAL_MS", "60000")
		os.Setenv("STATS_LOG_INTERVAL_MS", "120000")
		os.Setenv("REVIEW_EXPIRY_SCHEDULE", "0 0 2 * * *")
		os.Setenv("STATS_LOG_SCHEDULE", "0 */5 * * * *")

		cfg := NewConfig()

		if cfg.Enabled {
			t.Error("Enabled should be false when SCHEDULER_ENABLED=false")
		}
		if cfg.ReviewExpiryInterval != time.Minute {
			t.Errorf("ReviewExpiryInterval = %v, want 1m", cfg.ReviewExpiryInterval)
		}
		if cfg.StatsLogInterval != 2*time.Minute {
			t.Errorf("StatsLogInterval = %v, want 2m", cfg.StatsLogInterval)
		}
		if cfg.ReviewExpirySchedule != "0 0 2 * * *" {
			t.Errorf("ReviewExpirySchedule = %q, want %q", cfg.ReviewExpirySchedule, "0 0 2 * * *")
		}
		if cfg.StatsLogSchedule != "0 */5 * * * *" {
			t.Errorf("StatsLogSchedule = %q, want %q", cfg.StatsLogSchedule, "0 */5 * * * *")
		}
	})
}

func TestGetEnvHelpers(t *testing.T) {
	t.Run("bool", func(t *testing.T) {
		os.Unsetenv("TEST_SCHED_BOOL")
		if !getEnvBool("TEST_SCHED_BOOL", true) {
			t.Error("unset var should return default")
		}
		os.Setenv("TEST_SCHED_BOOL", "false")
		defer os.Unsetenv("TEST_SCHED_BOOL")
		if getEnvBool("TEST_SCHED_BOOL", true) {
			t.Error("false should override default true")
		}
		os.Setenv("TEST_SCHED_BOOL", "invalid")
		if !getEnvBool("TEST_SCHED_BOOL", true) {
			t.Error("invalid value should return default")
		}
	})

	t.Run("int", func(t *testing.T) {
		os.Unsetenv("TEST_SCHED_INT")
		if got := getEnvInt("TEST_SCHED_INT", 42); got != 42 {
			t.Errorf("unset var = %d, want 42", got)
		}
		os.Setenv("TEST_SCHED_INT", "100")
		defer os.Unsetenv("TEST_SCHED_INT")
		if got := getEnvInt("TEST_SCHED_INT", 0); got != 100 {
			t.Errorf("set var = %d, want 100", got)
		}
		os.Setenv("TEST_SCHED_INT", "3.14")
		if got := getEnvInt("TEST_SCHED_INT", 5); got != 5 {
			t.Errorf("invalid value = %d, want default 5", got)
		}
	})

	t.Run("duration in milliseconds", func(t *testing.T) {
		os.Unsetenv("TEST_SCHED_DUR")
		if got := getEnvDuration("TEST_SCHED_DUR", time.Minute); got != time.Minute {
			t.Errorf("unset var = %v, want 1m", got)
		}
		os.Setenv("TEST_SCHED_DUR", "1000")
		defer os.Unsetenv("TEST_SCHED_DUR")
		if got := getEnvDuration("TEST_SCHED_DUR", 0); got != time.Second {
			t.Errorf("1000ms = %v, want 1s", got)
		}
		os.Setenv("TEST_SCHED_DUR", "bogus")
		if got := getEnvDuration("TEST_SCHED_DUR", 10*time.Second); got != 10*time.Second {
			t.Errorf("invalid value = %v, want default 10s", got)
		}
	})
}
