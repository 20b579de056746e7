package history

import (
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mfateev/llm-relay-bot/internal/models"
)

const (
	alice models.UserID = 1
	bob   models.UserID = 2
)

func numbered(n int) []models.ConversationTurn {
	turns := make([]models.ConversationTurn, n)
	for i := range turns {
		role := models.RoleUser
		if i%2 == 1 {
			role = models.RoleAssistant
		}
		turns[i] = models.ConversationTurn{Role: role, Content: fmt.Sprintf("msg-%d", i)}
	}
	return turns
}

func TestSnapshot_UnknownUserIsEmpty(t *testing.T) {
	s := NewInMemoryStore(10)
	snap := s.Snapshot(alice)
	require.NotNil(t, snap)
	assert.Len(t, snap, 0)
	assert.Equal(t, 0, s.Len(alice))
}

func TestNewInMemoryStore_DefaultWindow(t *testing.T) {
	assert.Equal(t, DefaultWindow, NewInMemoryStore(0).Window())
	assert.Equal(t, DefaultWindow, NewInMemoryStore(-3).Window())
	assert.Equal(t, 4, NewInMemoryStore(4).Window())
}

func TestAppend_KeepsLastWindowInOrder(t *testing.T) {
	const window = 10
	for _, n := range []int{1, 9, 10, 11, 25} {
		t.Run(fmt.Sprintf("n=%d", n), func(t *testing.T) {
			s := NewInMemoryStore(window)
			all := numbered(n)
			for _, turn := range all {
				s.Append(alice, turn)
			}

			want := all
			if n > window {
				want = all[n-window:]
			}
			assert.Equal(t, want, s.Snapshot(alice))
		})
	}
}

func TestAppend_BatchEqualsSingleAppends(t *testing.T) {
	batched := NewInMemoryStore(3)
	single := NewInMemoryStore(3)
	all := numbered(7)

	for i := 0; i+1 < len(all); i += 2 {
		batched.Append(alice, all[i], all[i+1])
		single.Append(alice, all[i])
		single.Append(alice, all[i+1])
	}
	assert.Equal(t, single.Snapshot(alice), batched.Snapshot(alice))
	assert.Len(t, batched.Snapshot(alice), 3)
}

func TestAppend_EvictsOldestPair(t *testing.T) {
	s := NewInMemoryStore(2)
	s.Append(alice, models.UserTurn("hi"), models.AssistantTurn("hello"))
	s.Append(alice, models.UserTurn("bye"), models.AssistantTurn("goodbye"))

	assert.Equal(t, []models.ConversationTurn{
		{Role: models.RoleUser, Content: "bye"},
		{Role: models.RoleAssistant, Content: "goodbye"},
	}, s.Snapshot(alice))
}

func TestAppend_NoTurnsIsNoop(t *testing.T) {
	s := NewInMemoryStore(2)
	s.Append(alice)
	assert.Equal(t, 0, s.Len(alice))
}

func TestSnapshot_IsACopy(t *testing.T) {
	s := NewInMemoryStore(5)
	s.Append(alice, models.UserTurn("first"))

	snap := s.Snapshot(alice)
	snap[0].Content = "mutated"
	s.Append(alice, models.AssistantTurn("second"))

	assert.Len(t, snap, 1)
	assert.Equal(t, "first", s.Snapshot(alice)[0].Content)
}

func TestClear(t *testing.T) {
	s := NewInMemoryStore(5)
	s.Clear(alice) // absent user

	s.Append(alice, numbered(4)...)
	s.Clear(alice)
	assert.Empty(t, s.Snapshot(alice))

	s.Append(alice, models.UserTurn("again"))
	assert.Equal(t, 1, s.Len(alice))
}

func TestIsolationBetweenUsers(t *testing.T) {
	s := NewInMemoryStore(4)
	s.Append(bob, models.UserTurn("bob-1"), models.AssistantTurn("bob-2"))
	before := s.Snapshot(bob)

	s.Append(alice, numbered(9)...)
	s.Clear(alice)
	s.Append(alice, models.UserTurn("alice"))

	assert.Equal(t, before, s.Snapshot(bob))
}

func TestConcurrentAppendsAndClears(t *testing.T) {
	const (
		users   = 8
		appends = 200
		window  = 6
	)
	s := NewInMemoryStore(window)

	var wg sync.WaitGroup
	for u := 0; u < users; u++ {
		id := models.UserID(u)
		wg.Add(2)
		go func() {
			defer wg.Done()
			for i := 0; i < appends; i++ {
				s.Append(id, models.UserTurn(fmt.Sprintf("u%d", i)), models.AssistantTurn(fmt.Sprintf("a%d", i)))
			}
		}()
		go func() {
			defer wg.Done()
			for i := 0; i < appends; i++ {
				snap := s.Snapshot(id)
				assert.LessOrEqual(t, len(snap), window)
				// Pairs are appended atomically, so a snapshot never splits one.
				assert.Equal(t, 0, len(snap)%2)
			}
		}()
	}
	wg.Wait()

	for u := 0; u < users; u++ {
		snap := s.Snapshot(models.UserID(u))
		require.Len(t, snap, window)
		assert.Equal(t, fmt.Sprintf("a%d", appends-1), snap[window-1].Content)
	}
}
