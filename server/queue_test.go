package server

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestQueueJoinPositions(t *testing.T) {
	q := NewQueue(10)

	pos, err := q.Join("alice")
	require.NoError(t, err)
	assert.Equal(t, 1, pos)

	pos, err = q.Join("bob")
	require.NoError(t, err)
	assert.Equal(t, 2, pos)

	assert.Equal(t, []string{"alice", "bob"}, q.Waiting())
}

func TestQueueRejectsDuplicateJoin(t *testing.T) {
	q := NewQueue(10)

	_, err := q.Join("alice")
	require.NoError(t, err)

	_, err = q.Join("alice")
	require.ErrorIs(t, err, ErrAlreadyQueued)
	assert.Equal(t, 1, q.Len())
}

func TestQueueLeave(t *testing.T) {
	q := NewQueue(10)
	_, _ = q.Join("alice")
	_, _ = q.Join("bob")

	assert.True(t, q.Leave("alice"))
	assert.False(t, q.Leave("alice"))
	assert.Equal(t, []string{"bob"}, q.Waiting())
}

func TestQueueQuorumStartsExactlyOneGame(t *testing.T) {
	const quorum = 4

	q := NewQueue(quorum)
	rosters := make(chan []string, 8)
	q.SetQuorumHandler(func(agentIDs []string) { rosters <- agentIDs })

	var wg sync.WaitGroup
	for i := 0; i < 6; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := q.Join(fmt.Sprintf("agent_%d", i))
			assert.NoError(t, err)
		}(i)
	}
	wg.Wait()

	select {
	case roster := <-rosters:
		assert.Len(t, roster, quorum)
	case <-time.After(time.Second):
		t.Fatal("quorum handler never fired")
	}

	// Only one game launched; the two extra agents stay queued.
	select {
	case roster := <-rosters:
		t.Fatalf("second game launched with roster %v", roster)
	case <-time.After(50 * time.Millisecond):
	}
	assert.Equal(t, 2, q.Len())
	assert.True(t, q.InProgress())
}

func TestQueueNoStartWhileGameInProgress(t *testing.T) {
	q := NewQueue(2)
	rosters := make(chan []string, 4)
	q.SetQuorumHandler(func(agentIDs []string) { rosters <- agentIDs })

	_, _ = q.Join("alice")
	_, _ = q.Join("bob")

	select {
	case roster := <-rosters:
		assert.Equal(t, []string{"alice", "bob"}, roster)
	case <-time.After(time.Second):
		t.Fatal("quorum handler never fired")
	}

	// Queue fills again while the game runs: no second launch.
	_, _ = q.Join("carol")
	_, _ = q.Join("dave")
	select {
	case <-rosters:
		t.Fatal("game launched while previous still in progress")
	case <-time.After(50 * time.Millisecond):
	}

	// A join after the game ends starts the next one.
	q.GameFinished()
	_, _ = q.Join("erin")
	select {
	case roster := <-rosters:
		assert.Equal(t, []string{"carol", "dave"}, roster)
	case <-time.After(time.Second):
		t.Fatal("next game never launched")
	}
	assert.Equal(t, []string{"erin"}, q.Waiting())
}
