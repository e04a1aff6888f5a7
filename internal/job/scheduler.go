package job

import (
	"sort"
	"sync"
	"time"
)

// Scheduler は遅延実行の機能を表す。
// Afterはdの経過後にfnを1回実行し、実行前に取り消すための関数を返す。
// 取り消し関数は、fnの実行前に取り消せた場合にtrueを返す。
type Scheduler interface {
	After(d time.Duration, fn func()) (cancel func() bool)
}

// timerScheduler はtime.AfterFuncによるScheduler。
type timerScheduler struct{}

// NewTimerScheduler は実時間で動作するSchedulerを生成する。
func NewTimerScheduler() Scheduler {
	return timerScheduler{}
}

func (timerScheduler) After(d time.Duration, fn func()) func() bool {
	t := time.AfterFunc(d, fn)
	return t.Stop
}

// ManualScheduler はAdvanceで時刻を進めたときにだけコールバックを実行するScheduler。
// コールバックはAdvanceの呼び出し元ゴルーチンで予定時刻順に実行される。
type ManualScheduler struct {
	mu    sync.Mutex
	now   time.Duration
	seq   int
	tasks []*manualTask
}

type manualTask struct {
	at  time.Duration
	seq int
	fn  func()
}

// NewManualScheduler はManualSchedulerを生成する。
func NewManualScheduler() *ManualScheduler {
	return &ManualScheduler{}
}

func (s *ManualScheduler) After(d time.Duration, fn func()) func() bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.seq++
	t := &manualTask{at: s.now + d, seq: s.seq, fn: fn}
	s.tasks = append(s.tasks, t)

	return func() bool {
		s.mu.Lock()
		defer s.mu.Unlock()
		for i, pending := range s.tasks {
			if pending == t {
				s.tasks = append(s.tasks[:i], s.tasks[i+1:]...)
				return true
			}
		}
		return false
	}
}

// Advance は時刻をdだけ進め、その間に予定時刻を迎えたコールバックを順に実行する。
// コールバック内で登録された予定も、期限内であれば同じAdvanceで実行する。
func (s *ManualScheduler) Advance(d time.Duration) {
	s.mu.Lock()
	target := s.now + d
	s.mu.Unlock()

	for {
		s.mu.Lock()
		sort.SliceStable(s.tasks, func(i, j int) bool {
			if s.tasks[i].at != s.tasks[j].at {
				return s.tasks[i].at < s.tasks[j].at
			}
			return s.tasks[i].seq < s.tasks[j].seq
		})
		if len(s.tasks) == 0 || s.tasks[0].at > target {
			s.now = target
			s.mu.Unlock()
			return
		}
		next := s.tasks[0]
		s.tasks = s.tasks[1:]
		s.now = next.at
		s.mu.Unlock()

		next.fn()
	}
}

// Pending は未実行の予定数を返す。
func (s *ManualScheduler) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.tasks)
}

var (
	_ Scheduler = timerScheduler{}
	_ Scheduler = (*ManualScheduler)(nil)
)
