package selector

import (
	"sync"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/go-go-golems/chatsync/pkg/messages"
)

func TestApplyClearsTheOtherID(t *testing.T) {
	s := New()
	c, err := s.Apply(Intent{Kind: OpenAgent, ID: "7"})
	require.NoError(t, err)
	assert.True(t, c.Changed)
	assert.Equal(t, "7", c.Next.AgentID())
	assert.Empty(t, c.Next.ChatboxID())

	c, err = s.Apply(Intent{Kind: OpenChatbox, ID: "4"})
	require.NoError(t, err)
	assert.Equal(t, "4", c.Next.ChatboxID())
	assert.Empty(t, c.Next.AgentID())
	assert.Equal(t, uint64(2), c.Generation)
}

func TestReselectIsNoop(t *testing.T) {
	s := New()
	calls := 0
	s.OnChange(func(Change) { calls++ })

	_, err := s.Apply(Intent{Kind: OpenAgent, ID: "7"})
	require.NoError(t, err)
	c, err := s.Apply(Intent{Kind: OpenAgent, ID: "7"})
	require.NoError(t, err)
	assert.False(t, c.Changed)
	assert.Equal(t, 1, calls)

	// general is the initial scope
	c, err = New().Apply(Intent{Kind: OpenGeneral, ID: "ignored"})
	require.NoError(t, err)
	assert.False(t, c.Changed)
}

func TestInvalidIntent(t *testing.T) {
	s := New()
	_, err := s.Apply(Intent{Kind: OpenChatbox})
	assert.True(t, errors.Is(err, ErrInvalidIntent))
	_, err = s.Apply(Intent{Kind: "open-nothing", ID: "1"})
	assert.True(t, errors.Is(err, ErrInvalidIntent))

	cur, gen := s.Current()
	assert.True(t, cur.IsGeneral())
	assert.Equal(t, uint64(0), gen)
}

func TestHooksSeeEveryChange(t *testing.T) {
	s := New()
	var seen []string
	s.OnChange(func(c Change) { seen = append(seen, c.Prev.String()+">"+c.Next.String()) })

	for _, i := range []Intent{
		{Kind: OpenAgent, ID: "7"},
		{Kind: OpenChatbox, ID: "4"},
		{Kind: OpenGeneral},
	} {
		_, err := s.Apply(i)
		require.NoError(t, err)
	}
	assert.Equal(t, []string{"general>agent:7", "agent:7>chatbox:4", "chatbox:4>general"}, seen)
}

func TestIsCurrent(t *testing.T) {
	s := New()
	c, err := s.Apply(Intent{Kind: OpenAgent, ID: "7"})
	require.NoError(t, err)
	assert.True(t, s.IsCurrent(messages.Agent("7"), c.Generation))

	_, err = s.Apply(Intent{Kind: OpenChatbox, ID: "4"})
	require.NoError(t, err)
	assert.False(t, s.IsCurrent(messages.Agent("7"), c.Generation))

	// coming back to the same scope is a new generation
	_, err = s.Apply(Intent{Kind: OpenAgent, ID: "7"})
	require.NoError(t, err)
	assert.False(t, s.IsCurrent(messages.Agent("7"), c.Generation))
}

func TestRacingIntentsLastWins(t *testing.T) {
	s := New()
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			if i%2 == 0 {
				_, _ = s.Apply(Intent{Kind: OpenAgent, ID: "7"})
			} else {
				_, _ = s.Apply(Intent{Kind: OpenChatbox, ID: "4"})
			}
		}(i)
	}
	wg.Wait()

	cur, _ := s.Current()
	// never a merged scope
	assert.True(t, (cur.AgentID() == "7") != (cur.ChatboxID() == "4"))
}

func TestRacingHooksRunInGenerationOrder(t *testing.T) {
	s := New()
	var mu sync.Mutex
	var seen []Change
	s.OnChange(func(c Change) {
		mu.Lock()
		defer mu.Unlock()
		seen = append(seen, c)
	})

	var wg sync.WaitGroup
	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			switch i % 3 {
			case 0:
				_, _ = s.Apply(Intent{Kind: OpenAgent, ID: "7"})
			case 1:
				_, _ = s.Apply(Intent{Kind: OpenChatbox, ID: "4"})
			default:
				_, _ = s.Apply(Intent{Kind: OpenGeneral})
			}
		}(i)
	}
	wg.Wait()

	mu.Lock()
	defer mu.Unlock()
	require.NotEmpty(t, seen)
	for i := 1; i < len(seen); i++ {
		assert.Equal(t, seen[i-1].Generation+1, seen[i].Generation)
		assert.True(t, seen[i-1].Next.Equal(seen[i].Prev))
	}
	cur, gen := s.Current()
	last := seen[len(seen)-1]
	assert.True(t, cur.Equal(last.Next))
	assert.Equal(t, gen, last.Generation)
}

func TestIntentForRoundTrip(t *testing.T) {
	for _, sc := range []messages.Scope{messages.Agent("1"), messages.Chatbox("2"), messages.General()} {
		got, err := IntentFor(sc).Scope()
		require.NoError(t, err)
		assert.True(t, sc.Equal(got))
	}
}
