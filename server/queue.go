package server

import (
	"errors"
	"sync"

	"go.uber.org/atomic"
)

// ErrAlreadyQueued rejects a second join for an agent already waiting.
var ErrAlreadyQueued = errors.New("agent already queued")

// QuorumFunc receives the selected roster when the queue fills. It runs on
// its own goroutine; the queue lock is not held during the call.
type QuorumFunc func(agentIDs []string)

// Queue is the matchmaking waiting line. Joining when the line reaches the
// quorum atomically dequeues the first quorum agents and launches a game;
// agents beyond the quorum stay queued for the next one.
type Queue struct {
	mu      sync.Mutex
	waiting []string

	quorum     int
	inProgress atomic.Bool
	onQuorum   QuorumFunc
}

func NewQueue(quorum int) *Queue {
	return &Queue{quorum: quorum}
}

// SetQuorumHandler installs the game-launch callback.
func (q *Queue) SetQuorumHandler(fn QuorumFunc) {
	q.mu.Lock()
	q.onQuorum = fn
	q.mu.Unlock()
}

// Join adds the agent to the waiting line and returns its position. The
// quorum check and the dequeue happen under the same lock, so two
// near-simultaneous joins can never both trigger a start or split the
// roster.
func (q *Queue) Join(agentID string) (int, error) {
	q.mu.Lock()

	for _, waiting := range q.waiting {
		if waiting == agentID {
			q.mu.Unlock()
			return 0, ErrAlreadyQueued
		}
	}

	q.waiting = append(q.waiting, agentID)
	position := len(q.waiting)

	var selected []string
	if len(q.waiting) >= q.quorum && !q.inProgress.Load() {
		selected = q.waiting[:q.quorum]
		q.waiting = append([]string(nil), q.waiting[q.quorum:]...)
		q.inProgress.Store(true)
	}
	onQuorum := q.onQuorum
	q.mu.Unlock()

	if selected != nil && onQuorum != nil {
		go onQuorum(selected)
	}
	return position, nil
}

// Leave removes the agent from the waiting line. Returns false if it was
// not queued; an agent already pulled into a running game is not affected.
func (q *Queue) Leave(agentID string) bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	for i, waiting := range q.waiting {
		if waiting == agentID {
			q.waiting = append(q.waiting[:i], q.waiting[i+1:]...)
			return true
		}
	}
	return false
}

// GameFinished clears the in-progress flag so the next full queue can
// start a session.
func (q *Queue) GameFinished() {
	q.inProgress.Store(false)
}

// InProgress reports whether a game session is currently running.
func (q *Queue) InProgress() bool {
	return q.inProgress.Load()
}

// Waiting returns a copy of the waiting line in join order.
func (q *Queue) Waiting() []string {
	q.mu.Lock()
	defer q.mu.Unlock()
	return append([]string(nil), q.waiting...)
}

// Len returns the waiting line length.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.waiting)
}

// Clear resets the waiting line and the in-progress flag. Testing only.
func (q *Queue) Clear() {
	q.mu.Lock()
	q.waiting = nil
	q.mu.Unlock()
	q.inProgress.Store(false)
}
