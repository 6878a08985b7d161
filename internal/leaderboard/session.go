// Package leaderboard implements the per-view refresh session behind the live
// leaderboard screen: one event loop per mounted view that owns the selected
// league/gameweek, the search debounce timer, the auto-refresh ticker and the
// cancellation of superseded fetches.
package leaderboard

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/openfantasy/leagueserver/internal/model"
)

// Fetcher loads the ordered standings for a league and gameweek. The session
// cancels the context of a fetch that has been superseded.
type Fetcher interface {
	FetchLeaderboard(ctx context.Context, leagueID uuid.UUID, gameweek int, force bool) ([]model.LeaderboardEntry, error)
}

// Row is one rendered leaderboard line. Key is the stable row identity
// (linked team ID when present, else entry ID) so rank shuffles update rows
// in place instead of tearing them down.
type Row struct {
	Key            uuid.UUID `json:"key"`
	Rank           int       `json:"rank"`
	Username       string    `json:"username"`
	TeamName       string    `json:"team_name"`
	TotalPoints    int       `json:"total_points"`
	GameweekPoints int       `json:"gameweek_points"`
}

// Snapshot is the full view state emitted after every state change.
type Snapshot struct {
	LeagueID     uuid.UUID `json:"league_id"`
	Gameweek     int       `json:"gameweek"`
	PendingQuery string    `json:"pending_query"`
	Query        string    `json:"query"`
	Rows         []Row     `json:"rows"`
	Loading      bool      `json:"loading"`
	AutoRefresh  bool      `json:"auto_refresh"`
	// Err carries a non-fatal fetch failure. The previous rows stay visible:
	// stale-but-valid data beats no data.
	Err string `json:"error,omitempty"`
}

type Config struct {
	// SearchDebounce is the quiet period before a query is applied.
	SearchDebounce time.Duration
	// AutoRefreshInterval drives Refresh(false) while auto-refresh is on.
	AutoRefreshInterval time.Duration
	// SnapshotBuffer bounds the outgoing snapshot channel.
	SnapshotBuffer int
}

func DefaultConfig() Config {
	return Config{
		SearchDebounce:      300 * time.Millisecond,
		AutoRefreshInterval: 30 * time.Second,
		SnapshotBuffer:      8,
	}
}

type commandKind int

const (
	cmdSelectLeague commandKind = iota
	cmdSelectGameweek
	cmdSearch
	cmdRefresh
	cmdSetAutoRefresh
)

type command struct {
	kind     commandKind
	leagueID uuid.UUID
	gameweek int
	query    string
	force    bool
	enable   bool
}

type fetchResult struct {
	gen     uint64
	entries []model.LeaderboardEntry
	err     error
}

// Session owns all state for one mounted leaderboard view. All mutable state
// lives inside the run loop goroutine; the exported methods only post
// commands, so no locks are needed.
type Session struct {
	fetcher   Fetcher
	cfg       Config
	cmds      chan command
	results   chan fetchResult
	snapshots chan Snapshot
	ctx       context.Context
	cancel    context.CancelFunc
	done      chan struct{}

	// run-loop state, never touched outside run()
	leagueID      uuid.UUID
	gameweek      int
	entries       []model.LeaderboardEntry
	rows          []Row
	pendingQuery  string
	appliedQuery  string
	loading       bool
	lastErr       string
	autoRefresh   bool
	gen           uint64
	cancelFetch   context.CancelFunc
	debounceTimer *time.Timer
	ticker        *time.Ticker
}

// NewSession starts the session event loop. The first fetch fires for the
// given league with gameweek 0 (overall standings).
func NewSession(parent context.Context, fetcher Fetcher, leagueID uuid.UUID, cfg Config) *Session {
	if cfg.SearchDebounce <= 0 {
		cfg.SearchDebounce = DefaultConfig().SearchDebounce
	}
	if cfg.AutoRefreshInterval <= 0 {
		cfg.AutoRefreshInterval = DefaultConfig().AutoRefreshInterval
	}
	if cfg.SnapshotBuffer <= 0 {
		cfg.SnapshotBuffer = DefaultConfig().SnapshotBuffer
	}

	ctx, cancel := context.WithCancel(parent)

	s := &Session{
		fetcher:   fetcher,
		cfg:       cfg,
		cmds:      make(chan command),
		results:   make(chan fetchResult),
		snapshots: make(chan Snapshot, cfg.SnapshotBuffer),
		ctx:       ctx,
		cancel:    cancel,
		done:      make(chan struct{}),
		leagueID:  leagueID,
	}

	go s.run()

	return s
}

// Snapshots is the stream of view states. Closed when the session closes.
// When the consumer lags, older snapshots are dropped in favour of the newest.
func (s *Session) Snapshots() <-chan Snapshot {
	return s.snapshots
}

func (s *Session) SelectLeague(leagueID uuid.UUID) {
	s.post(command{kind: cmdSelectLeague, leagueID: leagueID})
}

func (s *Session) SelectGameweek(gameweek int) {
	s.post(command{kind: cmdSelectGameweek, gameweek: gameweek})
}

func (s *Session) Search(query string) {
	s.post(command{kind: cmdSearch, query: query})
}

func (s *Session) Refresh(force bool) {
	s.post(command{kind: cmdRefresh, force: force})
}

func (s *Session) SetAutoRefresh(enable bool) {
	s.post(command{kind: cmdSetAutoRefresh, enable: enable})
}

// Close tears the session down: cancels any in-flight fetch, stops all timers
// and closes the snapshot stream. Safe to call more than once.
func (s *Session) Close() {
	s.cancel()
	<-s.done
}

func (s *Session) post(cmd command) {
	select {
	case s.cmds <- cmd:
	case <-s.ctx.Done():
	}
}

func (s *Session) run() {
	defer close(s.done)
	defer close(s.snapshots)

	// Initial load for the league the view mounted with.
	s.refilter()
	s.startFetch(false)
	s.emit()

	for {
		var debounceC <-chan time.Time
		if s.debounceTimer != nil {
			debounceC = s.debounceTimer.C
		}
		var tickC <-chan time.Time
		if s.ticker != nil {
			tickC = s.ticker.C
		}

		select {
		case cmd := <-s.cmds:
			s.handle(cmd)

		case res := <-s.results:
			s.handleResult(res)

		case <-debounceC:
			// Quiet period elapsed: apply the pending query in one pass.
			s.debounceTimer = nil
			s.appliedQuery = s.pendingQuery
			s.refilter()
			s.emit()

		case <-tickC:
			s.startFetch(false)
			s.emit()

		case <-s.ctx.Done():
			s.teardown()
			return
		}
	}
}

func (s *Session) handle(cmd command) {
	switch cmd.kind {
	case cmdSelectLeague:
		if cmd.leagueID == s.leagueID {
			return
		}
		s.leagueID = cmd.leagueID
		s.resetView()
		s.startFetch(false)

	case cmdSelectGameweek:
		if cmd.gameweek == s.gameweek {
			return
		}
		s.gameweek = cmd.gameweek
		s.startFetch(false)

	case cmdSearch:
		// The pending query echoes immediately; the filter pass waits for
		// the quiet period, and re-arming drops the earlier pass.
		s.pendingQuery = cmd.query
		if s.debounceTimer != nil {
			s.debounceTimer.Stop()
		}
		s.debounceTimer = time.NewTimer(s.cfg.SearchDebounce)

	case cmdRefresh:
		s.startFetch(cmd.force)

	case cmdSetAutoRefresh:
		if cmd.enable == s.autoRefresh {
			return
		}
		s.autoRefresh = cmd.enable
		if cmd.enable {
			s.ticker = time.NewTicker(s.cfg.AutoRefreshInterval)
		} else if s.ticker != nil {
			s.ticker.Stop()
			s.ticker = nil
		}
	}

	s.emit()
}

func (s *Session) handleResult(res fetchResult) {
	if res.gen != s.gen {
		// Superseded fetch: a newer one owns the view now. Whatever this
		// one resolved to produces no visible effect.
		return
	}

	s.loading = false

	if res.err != nil {
		if errors.Is(res.err, context.Canceled) {
			return
		}
		// Keep the stale rows; only flag the failure.
		s.lastErr = res.err.Error()
		s.emit()
		return
	}

	s.lastErr = ""
	s.entries = res.entries
	s.refilter()
	s.emit()
}

// startFetch supersedes any in-flight fetch before launching a new one.
func (s *Session) startFetch(force bool) {
	if s.cancelFetch != nil {
		s.cancelFetch()
	}

	s.gen++
	gen := s.gen

	ctx, cancel := context.WithCancel(s.ctx)
	s.cancelFetch = cancel
	s.loading = true

	// Pin the view before spawning: the run loop may move leagueID/gameweek
	// while the goroutine is starting up.
	leagueID, gameweek := s.leagueID, s.gameweek

	go func() {
		entries, err := s.fetcher.FetchLeaderboard(ctx, leagueID, gameweek, force)
		select {
		case s.results <- fetchResult{gen: gen, entries: entries, err: err}:
		case <-s.ctx.Done():
		}
	}()
}

func (s *Session) resetView() {
	s.entries = nil
	s.pendingQuery = ""
	s.appliedQuery = ""
	s.lastErr = ""
	s.gameweek = 0
	s.refilter()
	if s.debounceTimer != nil {
		s.debounceTimer.Stop()
		s.debounceTimer = nil
	}
}

// refilter rebuilds the rendered rows. Called only when the entry list or the
// applied query changes, so keystroke echoes and loading flips reuse the
// previous pass.
func (s *Session) refilter() {
	s.rows = FilterRows(s.entries, s.appliedQuery)
}

func (s *Session) teardown() {
	if s.cancelFetch != nil {
		s.cancelFetch()
	}
	if s.debounceTimer != nil {
		s.debounceTimer.Stop()
	}
	if s.ticker != nil {
		s.ticker.Stop()
	}
}

func (s *Session) emit() {
	snap := Snapshot{
		LeagueID:     s.leagueID,
		Gameweek:     s.gameweek,
		PendingQuery: s.pendingQuery,
		Query:        s.appliedQuery,
		Rows:         s.rows,
		Loading:      s.loading,
		AutoRefresh:  s.autoRefresh,
		Err:          s.lastErr,
	}

	select {
	case s.snapshots <- snap:
	default:
		// Consumer is behind: drop one stale snapshot to make room for the
		// newest. The UI only ever needs the latest state.
		select {
		case <-s.snapshots:
		default:
		}
		select {
		case s.snapshots <- snap:
		default:
		}
	}
}

// FilterRows keeps entries whose username or team name contains the query,
// case-insensitively, preserving the fetched rank order.
func FilterRows(entries []model.LeaderboardEntry, query string) []Row {
	q := strings.ToLower(strings.TrimSpace(query))

	rows := make([]Row, 0, len(entries))
	for i := range entries {
		e := &entries[i]
		if q != "" &&
			!strings.Contains(strings.ToLower(e.Username), q) &&
			!strings.Contains(strings.ToLower(e.TeamName), q) {
			continue
		}
		rows = append(rows, Row{
			Key:            e.RowKey(),
			Rank:           e.Rank,
			Username:       e.Username,
			TeamName:       e.TeamName,
			TotalPoints:    e.TotalPoints,
			GameweekPoints: e.GameweekPoints,
		})
	}

	return rows
}
