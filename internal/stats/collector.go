package stats

import (
	"fmt"
	"sync"
	"sync/atomic"
	"time"
)

const ringSize = 60

// sample is one second of progress.
type sample struct {
	bytes int64 // bytes copied
	done  int64 // items and copy tasks finished, failures included
}

// Collector tracks sync statistics using lock-free atomic counters.
type Collector struct {
	itemsPlanned   atomic.Int64
	itemsDone      atomic.Int64
	itemsFailed    atomic.Int64
	itemsRejected  atomic.Int64
	bytesTotal     atomic.Int64
	bytesCopied    atomic.Int64
	deletes        atomic.Int64
	backups        atomic.Int64
	tasksSubmitted atomic.Int64
	tasksSucceeded atomic.Int64
	tasksFailed    atomic.Int64
	startTime      time.Time

	// Ring buffer, written only by the presenter's Tick.
	mu        sync.Mutex
	ring      [ringSize]sample
	ringIdx   int
	ringCount int
	lastBytes int64
	lastDone  int64
}

// NewCollector creates a Collector with startTime set to now.
func NewCollector() *Collector {
	return &Collector{startTime: time.Now()}
}

// Snapshot is a point-in-time read of all counters.
type Snapshot struct {
	ItemsPlanned   int64
	ItemsDone      int64
	ItemsFailed    int64
	ItemsRejected  int64
	BytesTotal     int64
	BytesCopied    int64
	Deletes        int64
	Backups        int64
	TasksSubmitted int64
	TasksSucceeded int64
	TasksFailed    int64
	Elapsed        time.Duration
}

func (c *Collector) AddItemsPlanned(n int64)   { c.itemsPlanned.Add(n) }
func (c *Collector) AddItemsDone(n int64)      { c.itemsDone.Add(n) }
func (c *Collector) AddItemsFailed(n int64)    { c.itemsFailed.Add(n) }
func (c *Collector) AddItemsRejected(n int64)  { c.itemsRejected.Add(n) }
func (c *Collector) AddBytesTotal(n int64)     { c.bytesTotal.Add(n) }
func (c *Collector) AddBytesCopied(n int64)    { c.bytesCopied.Add(n) }
func (c *Collector) AddDeletes(n int64)        { c.deletes.Add(n) }
func (c *Collector) AddBackups(n int64)        { c.backups.Add(n) }
func (c *Collector) AddTasksSubmitted(n int64) { c.tasksSubmitted.Add(n) }
func (c *Collector) AddTasksSucceeded(n int64) { c.tasksSucceeded.Add(n) }
func (c *Collector) AddTasksFailed(n int64)    { c.tasksFailed.Add(n) }

// Snapshot returns a point-in-time read of all counters.
func (c *Collector) Snapshot() Snapshot {
	return Snapshot{
		ItemsPlanned:   c.itemsPlanned.Load(),
		ItemsDone:      c.itemsDone.Load(),
		ItemsFailed:    c.itemsFailed.Load(),
		ItemsRejected:  c.itemsRejected.Load(),
		BytesTotal:     c.bytesTotal.Load(),
		BytesCopied:    c.bytesCopied.Load(),
		Deletes:        c.deletes.Load(),
		Backups:        c.backups.Load(),
		TasksSubmitted: c.tasksSubmitted.Load(),
		TasksSucceeded: c.tasksSucceeded.Load(),
		TasksFailed:    c.tasksFailed.Load(),
		Elapsed:        c.Elapsed(),
	}
}

// Failed reports the number of items and copy tasks that ended in failure.
func (s Snapshot) Failed() int64 { return s.ItemsFailed + s.TasksFailed }

// Succeeded reports the number of items and copy tasks that completed.
func (s Snapshot) Succeeded() int64 { return s.ItemsDone + s.TasksSucceeded }

// Tick records the progress made since the previous call. Called 1/sec by
// the presenter.
func (c *Collector) Tick() {
	bytes := c.bytesCopied.Load()
	done := c.itemsDone.Load() + c.itemsFailed.Load() + c.tasksSucceeded.Load() + c.tasksFailed.Load()

	c.mu.Lock()
	defer c.mu.Unlock()

	c.ring[c.ringIdx] = sample{bytes: bytes - c.lastBytes, done: done - c.lastDone}
	c.lastBytes, c.lastDone = bytes, done
	c.ringIdx = (c.ringIdx + 1) % ringSize
	if c.ringCount < ringSize {
		c.ringCount++
	}
}

// RollingSpeed returns average bytes/sec over the last n seconds of samples.
func (c *Collector) RollingSpeed(seconds int) float64 {
	return c.rolling(seconds, func(s sample) int64 { return s.bytes })
}

// RollingDoneRate returns finished items and tasks per second over the last
// n seconds of samples.
func (c *Collector) RollingDoneRate(seconds int) float64 {
	return c.rolling(seconds, func(s sample) int64 { return s.done })
}

func (c *Collector) rolling(seconds int, pick func(sample) int64) float64 {
	c.mu.Lock()
	defer c.mu.Unlock()

	count := min(seconds, c.ringCount)
	if count <= 0 {
		return 0
	}
	var sum int64
	for i := range count {
		sum += pick(c.ring[(c.ringIdx-1-i+ringSize)%ringSize])
	}
	return float64(sum) / float64(count)
}

// SparklineData returns up to the last n bytes/sec samples, oldest first.
func (c *Collector) SparklineData(n int) []float64 {
	return c.history(n, func(s sample) int64 { return s.bytes })
}

// DoneSparklineData returns up to the last n finished-per-second samples,
// oldest first.
func (c *Collector) DoneSparklineData(n int) []float64 {
	return c.history(n, func(s sample) int64 { return s.done })
}

func (c *Collector) history(n int, pick func(sample) int64) []float64 {
	c.mu.Lock()
	defer c.mu.Unlock()

	count := min(n, c.ringCount)
	if count <= 0 {
		return nil
	}
	data := make([]float64, count)
	for i := range count {
		data[i] = float64(pick(c.ring[(c.ringIdx-count+i+ringSize)%ringSize]))
	}
	return data
}

// ETA estimates remaining time based on rolling speed and remaining bytes.
func (c *Collector) ETA() time.Duration {
	speed := c.RollingSpeed(10)
	if speed <= 0 {
		return 0
	}
	remaining := c.bytesTotal.Load() - c.bytesCopied.Load()
	if remaining <= 0 {
		return 0
	}
	return time.Duration(float64(remaining)/speed) * time.Second
}

// Elapsed returns time since collector creation.
func (c *Collector) Elapsed() time.Duration {
	return time.Since(c.startTime)
}

func (s Snapshot) String() string {
	return fmt.Sprintf(
		"planned=%d done=%d failed=%d rejected=%d bytes=%d deletes=%d backups=%d tasks=%d/%d/%d",
		s.ItemsPlanned, s.ItemsDone, s.ItemsFailed, s.ItemsRejected,
		s.BytesCopied, s.Deletes, s.Backups,
		s.TasksSubmitted, s.TasksSucceeded, s.TasksFailed,
	)
}

// FormatBytes returns a human-readable byte count.
func FormatBytes(b int64) string {
	const unit = 1024
	if b < unit {
		return fmt.Sprintf("%d B", b)
	}
	div, exp := int64(unit), 0
	for n := b / unit; n >= unit; n /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %ciB", float64(b)/float64(div), "KMGTPE"[exp])
}
