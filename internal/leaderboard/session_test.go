package leaderboard

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/openfantasy/leagueserver/internal/model"
	"github.com/stretchr/testify/require"
)

type stubFetcher struct {
	calls int64
	fn    func(ctx context.Context, leagueID uuid.UUID, gameweek int, force bool) ([]model.LeaderboardEntry, error)
}

func (f *stubFetcher) FetchLeaderboard(ctx context.Context, leagueID uuid.UUID, gameweek int, force bool) ([]model.LeaderboardEntry, error) {
	atomic.AddInt64(&f.calls, 1)
	return f.fn(ctx, leagueID, gameweek, force)
}

func (f *stubFetcher) callCount() int64 {
	return atomic.LoadInt64(&f.calls)
}

func entry(username, teamName string, rank int) model.LeaderboardEntry {
	return model.LeaderboardEntry{
		ID:       uuid.New(),
		Username: username,
		TeamName: teamName,
		Rank:     rank,
	}
}

func testConfig() Config {
	return Config{
		SearchDebounce:      80 * time.Millisecond,
		AutoRefreshInterval: 60 * time.Millisecond,
		SnapshotBuffer:      64,
	}
}

// waitFor drains snapshots until one matches pred, failing on timeout. All
// drained snapshots are returned so callers can assert on the history.
func waitFor(t *testing.T, s *Session, pred func(Snapshot) bool) (Snapshot, []Snapshot) {
	t.Helper()

	var seen []Snapshot
	deadline := time.After(3 * time.Second)
	for {
		select {
		case snap, ok := <-s.Snapshots():
			if !ok {
				t.Fatalf("snapshot stream closed before condition was met")
			}
			seen = append(seen, snap)
			if pred(snap) {
				return snap, seen
			}
		case <-deadline:
			t.Fatalf("timed out waiting for snapshot; saw %d snapshots", len(seen))
		}
	}
}

func usernames(rows []Row) []string {
	out := make([]string, len(rows))
	for i, r := range rows {
		out[i] = r.Username
	}
	return out
}

func TestSessionInitialLoad(t *testing.T) {
	leagueID := uuid.New()
	fetcher := &stubFetcher{fn: func(ctx context.Context, id uuid.UUID, gw int, force bool) ([]model.LeaderboardEntry, error) {
		return []model.LeaderboardEntry{entry("alice", "Alpha FC", 1), entry("bob", "Bravo FC", 2)}, nil
	}}

	s := NewSession(context.Background(), fetcher, leagueID, testConfig())
	defer s.Close()

	snap, _ := waitFor(t, s, func(sn Snapshot) bool { return !sn.Loading && len(sn.Rows) == 2 })
	require.Equal(t, leagueID, snap.LeagueID)
	require.Equal(t, []string{"alice", "bob"}, usernames(snap.Rows))
	require.Empty(t, snap.Err)
}

func TestSessionSupersededFetchIsDiscarded(t *testing.T) {
	leagueA := uuid.New()
	leagueB := uuid.New()
	releaseA := make(chan struct{})

	fetcher := &stubFetcher{fn: func(ctx context.Context, id uuid.UUID, gw int, force bool) ([]model.LeaderboardEntry, error) {
		if id == leagueA {
			// Deliberately ignore ctx so the stale result still arrives
			// and must be dropped by generation, not by cancellation.
			<-releaseA
			return []model.LeaderboardEntry{entry("from_a", "A Team", 1)}, nil
		}
		return []model.LeaderboardEntry{entry("from_b", "B Team", 1)}, nil
	}}

	s := NewSession(context.Background(), fetcher, leagueA, testConfig())
	defer s.Close()

	s.SelectLeague(leagueB)

	snap, _ := waitFor(t, s, func(sn Snapshot) bool {
		return sn.LeagueID == leagueB && !sn.Loading && len(sn.Rows) == 1
	})
	require.Equal(t, []string{"from_b"}, usernames(snap.Rows))

	// Let A's fetch finally resolve, then force another state change and
	// verify A's rows never surface.
	close(releaseA)
	s.Search("from")

	final, seen := waitFor(t, s, func(sn Snapshot) bool { return sn.Query == "from" })
	require.Equal(t, []string{"from_b"}, usernames(final.Rows))
	for _, sn := range seen {
		require.NotContains(t, usernames(sn.Rows), "from_a")
	}
}

func TestSessionCancelledFetchIsSilent(t *testing.T) {
	leagueA := uuid.New()
	leagueB := uuid.New()

	fetcher := &stubFetcher{fn: func(ctx context.Context, id uuid.UUID, gw int, force bool) ([]model.LeaderboardEntry, error) {
		if id == leagueA {
			<-ctx.Done()
			return nil, ctx.Err()
		}
		return []model.LeaderboardEntry{entry("from_b", "B Team", 1)}, nil
	}}

	s := NewSession(context.Background(), fetcher, leagueA, testConfig())
	defer s.Close()

	s.SelectLeague(leagueB)

	snap, seen := waitFor(t, s, func(sn Snapshot) bool {
		return sn.LeagueID == leagueB && !sn.Loading && len(sn.Rows) == 1
	})
	require.Equal(t, []string{"from_b"}, usernames(snap.Rows))

	// A cancelled fetch is not an error shown to the user.
	for _, sn := range seen {
		require.Empty(t, sn.Err)
	}
}

func TestSessionSearchDebounce(t *testing.T) {
	leagueID := uuid.New()
	fetcher := &stubFetcher{fn: func(ctx context.Context, id uuid.UUID, gw int, force bool) ([]model.LeaderboardEntry, error) {
		return []model.LeaderboardEntry{
			entry("john", "Giant Killers", 1),
			entry("joan", "Joan's XI", 2),
			entry("alice", "Alpha FC", 3),
		}, nil
	}}

	s := NewSession(context.Background(), fetcher, leagueID, testConfig())
	defer s.Close()

	waitFor(t, s, func(sn Snapshot) bool { return !sn.Loading && len(sn.Rows) == 3 })

	// Keystrokes inside the quiet period: only the final query gets a
	// filter pass.
	s.Search("jo")
	time.Sleep(20 * time.Millisecond)
	s.Search("joh")
	time.Sleep(20 * time.Millisecond)
	s.Search("john")

	snap, seen := waitFor(t, s, func(sn Snapshot) bool { return sn.Query == "john" })
	require.Equal(t, []string{"john"}, usernames(snap.Rows))

	applied := map[string]struct{}{}
	for _, sn := range seen {
		applied[sn.Query] = struct{}{}
	}
	require.NotContains(t, applied, "jo")
	require.NotContains(t, applied, "joh")

	// The pending query echoed immediately, before any filter pass.
	sawPendingEcho := false
	for _, sn := range seen {
		if sn.PendingQuery != "" && sn.Query == "" {
			sawPendingEcho = true
		}
	}
	require.True(t, sawPendingEcho)
}

func TestSessionFilterMatchesTeamName(t *testing.T) {
	leagueID := uuid.New()
	fetcher := &stubFetcher{fn: func(ctx context.Context, id uuid.UUID, gw int, force bool) ([]model.LeaderboardEntry, error) {
		return []model.LeaderboardEntry{
			entry("alice", "Giant Killers", 1),
			entry("bob", "Bravo FC", 2),
		}, nil
	}}

	s := NewSession(context.Background(), fetcher, leagueID, testConfig())
	defer s.Close()

	waitFor(t, s, func(sn Snapshot) bool { return !sn.Loading && len(sn.Rows) == 2 })

	s.Search("GIANT")
	snap, _ := waitFor(t, s, func(sn Snapshot) bool { return sn.Query == "GIANT" })
	require.Equal(t, []string{"alice"}, usernames(snap.Rows))
}

func TestSessionRefreshFailureKeepsStaleRows(t *testing.T) {
	leagueID := uuid.New()
	var failing atomic.Bool

	fetcher := &stubFetcher{fn: func(ctx context.Context, id uuid.UUID, gw int, force bool) ([]model.LeaderboardEntry, error) {
		if failing.Load() {
			return nil, errors.New("upstream unavailable")
		}
		return []model.LeaderboardEntry{entry("alice", "Alpha FC", 1), entry("bob", "Bravo FC", 2)}, nil
	}}

	s := NewSession(context.Background(), fetcher, leagueID, testConfig())
	defer s.Close()

	waitFor(t, s, func(sn Snapshot) bool { return !sn.Loading && len(sn.Rows) == 2 })

	failing.Store(true)
	s.Refresh(false)

	snap, _ := waitFor(t, s, func(sn Snapshot) bool { return sn.Err != "" })
	require.Equal(t, []string{"alice", "bob"}, usernames(snap.Rows))
	require.Contains(t, snap.Err, "upstream unavailable")

	// A later successful refresh clears the indicator.
	failing.Store(false)
	s.Refresh(false)
	snap, _ = waitFor(t, s, func(sn Snapshot) bool { return sn.Err == "" && !sn.Loading && len(sn.Rows) == 2 })
	require.Empty(t, snap.Err)
}

func TestSessionRowIdentityStableAcrossRankShuffle(t *testing.T) {
	leagueID := uuid.New()
	first := entry("alice", "Alpha FC", 1)
	second := entry("bob", "Bravo FC", 2)

	var shuffled atomic.Bool
	fetcher := &stubFetcher{fn: func(ctx context.Context, id uuid.UUID, gw int, force bool) ([]model.LeaderboardEntry, error) {
		a, b := first, second
		if shuffled.Load() {
			a.Rank, b.Rank = 2, 1
			return []model.LeaderboardEntry{b, a}, nil
		}
		return []model.LeaderboardEntry{a, b}, nil
	}}

	s := NewSession(context.Background(), fetcher, leagueID, testConfig())
	defer s.Close()

	before, _ := waitFor(t, s, func(sn Snapshot) bool { return !sn.Loading && len(sn.Rows) == 2 })

	shuffled.Store(true)
	s.Refresh(false)
	after, _ := waitFor(t, s, func(sn Snapshot) bool {
		return !sn.Loading && len(sn.Rows) == 2 && sn.Rows[0].Username == "bob"
	})

	// Same identities, only updates: no row is torn down because its rank
	// moved.
	ops := DiffRows(before.Rows, after.Rows)
	require.Len(t, ops, 2)
	for _, op := range ops {
		require.Equal(t, OpUpdate, op.Kind)
	}
}

func TestSessionRefreshIdempotentWhenDataUnchanged(t *testing.T) {
	leagueID := uuid.New()
	entries := []model.LeaderboardEntry{entry("alice", "Alpha FC", 1), entry("bob", "Bravo FC", 2)}

	fetcher := &stubFetcher{fn: func(ctx context.Context, id uuid.UUID, gw int, force bool) ([]model.LeaderboardEntry, error) {
		return entries, nil
	}}

	s := NewSession(context.Background(), fetcher, leagueID, testConfig())
	defer s.Close()

	before, _ := waitFor(t, s, func(sn Snapshot) bool { return !sn.Loading && len(sn.Rows) == 2 })

	s.Refresh(false)
	after, _ := waitFor(t, s, func(sn Snapshot) bool { return !sn.Loading && len(sn.Rows) == 2 })

	require.Equal(t, before.Rows, after.Rows)
	require.Empty(t, DiffRows(before.Rows, after.Rows))
}

func TestSessionAutoRefresh(t *testing.T) {
	leagueID := uuid.New()
	fetcher := &stubFetcher{fn: func(ctx context.Context, id uuid.UUID, gw int, force bool) ([]model.LeaderboardEntry, error) {
		return []model.LeaderboardEntry{entry("alice", "Alpha FC", 1)}, nil
	}}

	s := NewSession(context.Background(), fetcher, leagueID, testConfig())
	defer s.Close()

	waitFor(t, s, func(sn Snapshot) bool { return !sn.Loading && len(sn.Rows) == 1 })
	baseline := fetcher.callCount()

	s.SetAutoRefresh(true)
	require.Eventually(t, func() bool {
		return fetcher.callCount() >= baseline+2
	}, 2*time.Second, 10*time.Millisecond)

	s.SetAutoRefresh(false)
	waitFor(t, s, func(sn Snapshot) bool { return !sn.AutoRefresh })

	// No more ticks once disabled. Let any fetch started by a final tick
	// land before taking the baseline.
	time.Sleep(2 * testConfig().AutoRefreshInterval)
	idle := fetcher.callCount()
	time.Sleep(4 * testConfig().AutoRefreshInterval)
	require.Equal(t, idle, fetcher.callCount())
}

// A fetch must carry the league and gameweek the view had when it was
// started, even when the run loop moves on before the fetch goroutine gets
// scheduled. A stale or torn read would surface here as an argument that
// matches neither selected league.
func TestSessionFetchArgumentsPinnedAtStart(t *testing.T) {
	leagueA := uuid.New()
	leagueB := uuid.New()

	for i := 0; i < 50; i++ {
		var mu sync.Mutex
		var seen []uuid.UUID

		fetcher := &stubFetcher{fn: func(ctx context.Context, id uuid.UUID, gw int, force bool) ([]model.LeaderboardEntry, error) {
			mu.Lock()
			seen = append(seen, id)
			mu.Unlock()
			return []model.LeaderboardEntry{entry("alice", "Alpha FC", 1)}, nil
		}}

		s := NewSession(context.Background(), fetcher, leagueA, testConfig())
		s.SelectLeague(leagueB)

		waitFor(t, s, func(sn Snapshot) bool {
			return sn.LeagueID == leagueB && !sn.Loading && len(sn.Rows) == 1
		})
		s.Close()

		mu.Lock()
		for _, id := range seen {
			require.True(t, id == leagueA || id == leagueB, "fetch saw league %s, want %s or %s", id, leagueA, leagueB)
		}
		mu.Unlock()
	}
}

// Keystroke echoes inside the quiet period must not rebuild the row list;
// the snapshots they produce share the rows of the last filter pass.
func TestSessionKeystrokeEchoReusesRows(t *testing.T) {
	leagueID := uuid.New()
	fetcher := &stubFetcher{fn: func(ctx context.Context, id uuid.UUID, gw int, force bool) ([]model.LeaderboardEntry, error) {
		return []model.LeaderboardEntry{entry("alice", "Alpha FC", 1), entry("bob", "Bravo FC", 2)}, nil
	}}

	s := NewSession(context.Background(), fetcher, leagueID, testConfig())
	defer s.Close()

	loaded, _ := waitFor(t, s, func(sn Snapshot) bool { return !sn.Loading && len(sn.Rows) == 2 })

	s.Search("al")
	echo, _ := waitFor(t, s, func(sn Snapshot) bool { return sn.PendingQuery == "al" })

	// Same backing array: the echo did not run another filter pass.
	require.Equal(t, "", echo.Query)
	require.Same(t, &loaded.Rows[0], &echo.Rows[0])

	// The debounced pass still applies the filter.
	applied, _ := waitFor(t, s, func(sn Snapshot) bool { return sn.Query == "al" })
	require.Equal(t, []string{"alice"}, usernames(applied.Rows))
}

func TestSessionCloseStopsEverything(t *testing.T) {
	leagueID := uuid.New()
	fetcher := &stubFetcher{fn: func(ctx context.Context, id uuid.UUID, gw int, force bool) ([]model.LeaderboardEntry, error) {
		return []model.LeaderboardEntry{entry("alice", "Alpha FC", 1)}, nil
	}}

	s := NewSession(context.Background(), fetcher, leagueID, testConfig())
	waitFor(t, s, func(sn Snapshot) bool { return !sn.Loading })

	s.SetAutoRefresh(true)
	s.Close()

	// The stream closes and commands after Close don't block or panic.
	require.Eventually(t, func() bool {
		_, ok := <-s.Snapshots()
		return !ok
	}, time.Second, 5*time.Millisecond)
	s.Refresh(true)
	s.Search("late")
}
