package handler

import (
	"context"
	"log"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/openfantasy/leagueserver/internal/leaderboard"
	"github.com/openfantasy/leagueserver/internal/model"
	"github.com/openfantasy/leagueserver/internal/service"
	"github.com/openfantasy/leagueserver/pkg/apperror"
	"github.com/openfantasy/leagueserver/pkg/response"
)

type LeaderboardHandler struct {
	service    service.LeaderboardService
	sessionCfg leaderboard.Config
	upgrader   websocket.Upgrader
}

func NewLeaderboardHandler(svc service.LeaderboardService, sessionCfg leaderboard.Config) *LeaderboardHandler {
	return &LeaderboardHandler{
		service:    svc,
		sessionCfg: sessionCfg,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 4096,
			// Origin is enforced by the CORS layer in front of the API.
			CheckOrigin: func(r *http.Request) bool { return true },
		},
	}
}

// GetLeaderboard serves one standings read: GET /leagues/:id/leaderboard
// ?gameweek=0&force=false&details=true
func (h *LeaderboardHandler) GetLeaderboard(c *gin.Context) {
	leagueID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.ResponseError(c, apperror.Validation("invalid league id"))
		return
	}

	gameweek, _ := strconv.Atoi(c.DefaultQuery("gameweek", "0"))
	force := c.Query("force") == "true"
	details := c.DefaultQuery("details", "true") != "false"

	entries, err := h.service.GetLeaderboard(c.Request.Context(), leagueID, gameweek, force, details)
	if err != nil {
		response.ResponseError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": entries})
}

// serviceFetcher adapts LeaderboardService to the session's Fetcher.
type serviceFetcher struct {
	svc service.LeaderboardService
}

func (f serviceFetcher) FetchLeaderboard(ctx context.Context, leagueID uuid.UUID, gameweek int, force bool) ([]model.LeaderboardEntry, error) {
	return f.svc.GetLeaderboard(ctx, leagueID, gameweek, force, true)
}

type wsCommand struct {
	Action   string `json:"action"`
	LeagueID string `json:"league_id,omitempty"`
	Gameweek int    `json:"gameweek,omitempty"`
	Query    string `json:"query,omitempty"`
	Force    bool   `json:"force,omitempty"`
	Enable   bool   `json:"enable,omitempty"`
}

type wsStateMessage struct {
	Type     string                `json:"type"` // "snapshot" or "patch"
	Snapshot *leaderboard.Snapshot `json:"snapshot,omitempty"`

	// patch fields
	Ops     []leaderboard.RowOp `json:"ops,omitempty"`
	Query   string              `json:"query,omitempty"`
	Loading bool                `json:"loading,omitempty"`
	Err     string              `json:"error,omitempty"`
}

// LiveLeaderboard upgrades to a WebSocket and runs one refresh session for
// the mounted view: GET /leagues/:id/leaderboard/live. The client drives it
// with JSON commands (select_league, select_gameweek, search, refresh,
// set_auto_refresh); the server streams a full snapshot on mount and league/
// gameweek switches, row patches otherwise.
func (h *LeaderboardHandler) LiveLeaderboard(c *gin.Context) {
	leagueID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.ResponseError(c, apperror.Validation("invalid league id"))
		return
	}

	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Printf("failed to upgrade websocket: %v", err)
		return
	}
	defer conn.Close()

	ctx, cancel := context.WithCancel(c.Request.Context())
	defer cancel()

	session := leaderboard.NewSession(ctx, serviceFetcher{svc: h.service}, leagueID, h.sessionCfg)
	defer session.Close()

	// Reader: client commands drive the session until the socket drops.
	go func() {
		defer cancel()
		for {
			var cmd wsCommand
			if err := conn.ReadJSON(&cmd); err != nil {
				return
			}

			switch cmd.Action {
			case "select_league":
				id, err := uuid.Parse(cmd.LeagueID)
				if err != nil {
					continue
				}
				session.SelectLeague(id)
			case "select_gameweek":
				session.SelectGameweek(cmd.Gameweek)
			case "search":
				session.Search(cmd.Query)
			case "refresh":
				session.Refresh(cmd.Force)
			case "set_auto_refresh":
				session.SetAutoRefresh(cmd.Enable)
			}
		}
	}()

	var last *leaderboard.Snapshot

	for snap := range session.Snapshots() {
		msg := buildStateMessage(last, snap)
		snapCopy := snap
		last = &snapCopy

		if msg == nil {
			continue
		}
		if err := conn.WriteJSON(msg); err != nil {
			log.Printf("failed to write leaderboard state: %v", err)
			return
		}
	}
}

// buildStateMessage decides between a full snapshot and a keyed patch. View
// switches (league or gameweek) always resend everything; within one view,
// patches keep already-rendered rows alive so rank shuffles update in place.
func buildStateMessage(last *leaderboard.Snapshot, snap leaderboard.Snapshot) *wsStateMessage {
	if last == nil || last.LeagueID != snap.LeagueID || last.Gameweek != snap.Gameweek {
		return &wsStateMessage{Type: "snapshot", Snapshot: &snap}
	}

	ops := leaderboard.DiffRows(last.Rows, snap.Rows)
	if len(ops) == 0 &&
		last.Query == snap.Query &&
		last.Loading == snap.Loading &&
		last.Err == snap.Err &&
		last.AutoRefresh == snap.AutoRefresh {
		// Nothing the client renders has changed.
		return nil
	}

	return &wsStateMessage{
		Type:    "patch",
		Ops:     ops,
		Query:   snap.Query,
		Loading: snap.Loading,
		Err:     snap.Err,
	}
}
