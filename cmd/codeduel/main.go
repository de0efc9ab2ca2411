// cmd/codeduel/main.go
package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	_ "github.com/joho/godotenv/autoload"
	"github.com/sirupsen/logrus"

	"github.com/codeduel-dev/codeduel/internal/api"
	"github.com/codeduel-dev/codeduel/internal/auth"
	"github.com/codeduel-dev/codeduel/internal/config"
	"github.com/codeduel-dev/codeduel/internal/editor"
	"github.com/codeduel-dev/codeduel/internal/lobby"
	"github.com/codeduel-dev/codeduel/internal/match"
	"github.com/codeduel-dev/codeduel/internal/protocol"
	"github.com/codeduel-dev/codeduel/internal/session"
	"github.com/codeduel-dev/codeduel/internal/socket"
	"github.com/codeduel-dev/codeduel/internal/store"
)

func main() {
	email := flag.String("email", "", "login email")
	password := flag.String("password", "", "login password")
	username := flag.String("username", "", "sign up with this username (requires -email and -password)")
	logout := flag.Bool("logout", false, "discard the cached token and exit")
	flag.Parse()

	cfg := config.Load()

	logger := logrus.New()
	if lvl, err := logrus.ParseLevel(cfg.LogLevel); err == nil {
		logger.SetLevel(lvl)
	}

	authClient := auth.NewClient(cfg.ServerURL, cfg.TokenFile, nil)
	if *logout {
		if err := authClient.ClearToken(); err != nil {
			logger.Fatalf("clear token: %v", err)
		}
		fmt.Println("logged out")
		return
	}

	ctx := context.Background()
	token, user, err := authenticate(ctx, authClient, *email, *password, *username)
	if err != nil {
		logger.Fatalf("authentication failed: %v", err)
	}
	fmt.Printf("logged in as %s (level %d, rank #%d)\n", user.Username, user.Level, user.Rank)

	db, err := store.Open(cfg.DataDir)
	if err != nil {
		logger.Fatalf("open local store: %v", err)
	}
	defer db.Close()

	app := newApp(cfg, logger, db, token, user)
	defer app.shutdown()

	app.run(ctx)
}

// authenticate resolves a usable token: signup, login, or the cached
// token if it still verifies.
func authenticate(ctx context.Context, c *auth.Client, email, password, username string) (string, auth.User, error) {
	if username != "" {
		token, user, err := c.Signup(ctx, username, email, password)
		if err != nil {
			return "", auth.User{}, err
		}
		return token, user, c.SaveToken(token)
	}
	if email != "" {
		token, user, err := c.Login(ctx, email, password)
		if err != nil {
			return "", auth.User{}, err
		}
		return token, user, c.SaveToken(token)
	}
	token := c.LoadToken()
	if token == "" {
		return "", auth.User{}, fmt.Errorf("no cached token; run with -email and -password")
	}
	if auth.Expired(token, time.Now()) {
		return "", auth.User{}, fmt.Errorf("cached token expired; run with -email and -password")
	}
	user, err := c.Verify(ctx, token)
	if err != nil {
		return "", auth.User{}, fmt.Errorf("cached token rejected: %w", err)
	}
	return token, user, nil
}

// app wires the realtime channel, session state, and local persistence
// behind the interactive prompt.
type app struct {
	cfg      config.Config
	log      *logrus.Logger
	db       *store.Store
	user     auth.User
	sock     *socket.Manager
	sessions *session.Store
	coord    *lobby.Coordinator
	runtime  *match.Runtime
	rest     *api.Client
	watcher  *editor.Watcher
	done     chan struct{}
}

func newApp(cfg config.Config, logger *logrus.Logger, db *store.Store, token string, user auth.User) *app {
	a := &app{
		cfg:  cfg,
		log:  logger,
		db:   db,
		user: user,
		rest: api.NewClient(cfg.ServerURL, token, logger),
		done: make(chan struct{}),
	}

	a.sock = socket.NewManager(cfg.SocketURL, logger)
	a.sessions = session.NewStore(session.Participant{ID: user.ID, DisplayName: user.Username})

	a.coord = lobby.NewCoordinator(a.sock, a.sessions, logger, lobby.Hooks{
		Error:        func(msg string) { fmt.Printf("\n[error] %s\n> ", msg) },
		Info:         func(msg string) { fmt.Printf("\n[info] %s\n> ", msg) },
		NavigateHome: a.navigateHome,
		MatchActive:  a.onMatchActive,
		RoomChanged:  a.onRoomChanged,
	})

	a.runtime = match.NewRuntime(a.sock, a.sessions, logger, match.Hooks{
		Tick:              a.onTick,
		OpponentSubmitted: func() { fmt.Print("\n[match] opponent submitted\n> ") },
		OpponentCode:      func(string) {},
		Chat:              func(who, msg string) { fmt.Printf("\n[%s] %s\n> ", who, msg) },
		Ended:             a.onEnded,
		ForfeitWin:        a.onForfeitWin,
		Error:             func(msg string) { fmt.Printf("\n[match error] %s\n> ", msg) },
		NavigateHome:      a.navigateHome,
	})

	a.sock.Connect(context.Background(), token)

	sub := a.sock.Subscribe()
	go func() {
		for ev := range sub.C {
			a.coord.HandleInbound(ev)
			a.runtime.HandleInbound(ev)
		}
	}()

	stateSub := a.sock.SubscribeState()
	go func() {
		for s := range stateSub.C {
			a.coord.HandleConnState(s)
			switch s {
			case socket.Disconnected:
				fmt.Print("\n[conn] connection lost\n> ")
			case socket.Connected:
				fmt.Print("\n[conn] connected\n> ")
			}
		}
	}()

	if cfg.SolutionFile != "" {
		w, err := editor.NewWatcher(cfg.SolutionFile, logger, func(content string) {
			a.runtime.SetCode(content)
			a.saveDraft(content)
		})
		if err != nil {
			logger.WithError(err).Warn("solution watcher unavailable")
		} else if err := w.Start(); err != nil {
			logger.WithError(err).Warn("solution watcher failed to start")
		} else {
			a.watcher = w
			fmt.Printf("watching %s for code changes\n", cfg.SolutionFile)
		}
	}

	return a
}

func (a *app) shutdown() {
	if a.watcher != nil {
		a.watcher.Stop()
	}
	a.sock.Disconnect()
}

func (a *app) navigateHome(delay time.Duration) {
	time.AfterFunc(delay, func() {
		fmt.Print("\n[nav] back to lobby\n> ")
	})
}

func (a *app) onMatchActive() {
	if err := a.runtime.Start(); err != nil {
		a.log.WithError(err).Warn("match runtime start")
		return
	}
	snap, ok := a.sessions.Snapshot()
	if !ok {
		return
	}
	fmt.Printf("\n[match] started: %s (%s), %ds limit\n> ",
		problemTitle(snap.Problem), snap.Language, snap.TimeLimitMs/1000)
	a.restoreDraft(snap)
}

func (a *app) onRoomChanged() {
	snap, ok := a.sessions.Snapshot()
	if !ok {
		return
	}
	opponent := "(waiting for opponent)"
	if snap.Opponent.DisplayName != "" {
		opponent = "vs " + snap.Opponent.DisplayName
	}
	fmt.Printf("\n[room %s] %s as %s, status %s\n> ", snap.ID, opponent, snap.Role, snap.Status)
}

// onTick prints the remaining clock once a minute and through the final
// ten seconds.
func (a *app) onTick(remainingMs int64) {
	sec := remainingMs / 1000
	if sec <= 10 || sec%60 == 0 {
		fmt.Printf("\n[clock] %02d:%02d remaining\n> ", sec/60, sec%60)
	}
}

func (a *app) onEnded(summary match.Summary) {
	fmt.Printf("\n[match over] %s (%s): you %d : %d %s\n> ",
		summary.Outcome, summary.Reason, summary.Self.Score, summary.Opponent.Score, summary.Opponent.Username)
	a.archive(summary)
}

func (a *app) onForfeitWin(delay time.Duration) {
	fmt.Print("\n[match over] opponent disconnected, you win by forfeit\n> ")
	snap, ok := a.sessions.Snapshot()
	if ok {
		a.archive(match.Summary{
			Outcome:  match.OutcomeWin,
			Winner:   snap.Self.ID,
			Self:     match.ParticipantResult{ID: snap.Self.ID, Username: snap.Self.DisplayName},
			Opponent: match.ParticipantResult{ID: snap.Opponent.ID, Username: snap.Opponent.DisplayName},
			Reason:   "opponent_disconnected",
		})
	}
	a.navigateHome(delay)
}

func (a *app) archive(summary match.Summary) {
	snap, ok := a.sessions.Snapshot()
	mode := string(session.ModeQuickMatch)
	sessionID := ""
	if ok {
		mode = string(snap.Mode)
		sessionID = snap.ID
	}
	err := a.db.RecordResult(context.Background(), store.Result{
		SessionID:     sessionID,
		Mode:          mode,
		Outcome:       string(summary.Outcome),
		Reason:        summary.Reason,
		Opponent:      summary.Opponent.Username,
		SelfScore:     summary.Self.Score,
		OpponentScore: summary.Opponent.Score,
		DurationMs:    summary.DurationMs,
	})
	if err != nil {
		a.log.WithError(err).Warn("archive match result")
	}
}

func (a *app) saveDraft(code string) {
	snap, ok := a.sessions.Snapshot()
	if !ok || snap.Problem == nil {
		return
	}
	if err := a.db.SaveDraft(context.Background(), snap.Problem.ID, snap.Language, code); err != nil {
		a.log.WithError(err).Warn("save draft")
	}
}

func (a *app) restoreDraft(snap session.Session) {
	if snap.Problem == nil || snap.Code != "" {
		return
	}
	code, err := a.db.LoadDraft(context.Background(), snap.Problem.ID, snap.Language)
	if err != nil {
		return
	}
	a.runtime.SetCode(code)
	fmt.Print("\n[draft] restored saved code for this problem\n> ")
}

func problemTitle(p *protocol.Problem) string {
	if p == nil {
		return "(no problem)"
	}
	return p.Title
}

func (a *app) run(ctx context.Context) {
	fmt.Println("commands: queue, leave, ready, create, join CODE, start, problem ID, lang NAME, code, submit, msg TEXT, rooms, status, history, profile, top, exit")
	scanner := bufio.NewScanner(os.Stdin)
	scanner.Buffer(make([]byte, 1024*1024), 1024*1024)
	fmt.Print("> ")
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			fmt.Print("> ")
			continue
		}
		cmd, arg, _ := strings.Cut(line, " ")
		if cmd == "exit" || cmd == "quit" {
			a.runtime.ForceExit()
			return
		}
		if err := a.execute(ctx, cmd, strings.TrimSpace(arg)); err != nil {
			fmt.Printf("error: %v\n", err)
		}
		fmt.Print("> ")
	}
}

func (a *app) execute(ctx context.Context, cmd, arg string) error {
	switch cmd {
	case "queue":
		return a.coord.JoinQueue()
	case "leave":
		if snap, ok := a.sessions.Snapshot(); ok && snap.Active() {
			a.runtime.ForceExit()
			return nil
		}
		return a.coord.LeaveQueue()
	case "ready":
		return a.coord.Ready()
	case "create":
		return a.coord.CreateRoom(protocol.RoomSettings{
			TimeLimit:  5 * 60 * 1000,
			Difficulty: "Medium",
			MaxPlayers: 2,
		})
	case "join":
		return a.coord.JoinRoom(arg)
	case "start":
		return a.coord.StartMatch()
	case "problem":
		return a.coord.ChangeProblem(arg)
	case "lang":
		a.runtime.SetLanguage(arg)
		return nil
	case "code":
		if a.watcher == nil {
			return fmt.Errorf("no solution file configured (set CODEDUEL_SOLUTION_FILE)")
		}
		content, err := a.watcher.Read()
		if err != nil {
			return err
		}
		a.runtime.SetCode(content)
		a.saveDraft(content)
		fmt.Printf("loaded %d bytes from %s\n", len(content), a.cfg.SolutionFile)
		return nil
	case "submit":
		return a.runtime.Submit()
	case "msg":
		return a.runtime.SendChat(arg)
	case "rooms":
		return a.showRooms(ctx)
	case "status":
		return a.showStatus()
	case "history":
		return a.showHistory(ctx)
	case "profile":
		return a.showProfile(ctx)
	case "top":
		return a.showLeaderboard(ctx)
	default:
		return fmt.Errorf("unknown command %q", cmd)
	}
}

func (a *app) showRooms(ctx context.Context) error {
	// Ask over the realtime channel and show what we already have;
	// fall back to REST when nothing has arrived yet.
	_ = a.coord.RequestRoomList()
	rooms := a.coord.Rooms()
	if len(rooms) == 0 {
		fetched, err := a.rest.PublicRooms(ctx)
		if err != nil {
			return err
		}
		rooms = fetched
	}
	if len(rooms) == 0 {
		fmt.Println("no public rooms")
		return nil
	}
	for _, r := range rooms {
		occupancy := "1/2"
		if r.Guest != "" {
			occupancy = "2/2"
		}
		fmt.Printf("  %s  host=%s  %s  %s\n", r.Code, r.Host, occupancy, r.Status)
	}
	return nil
}

func (a *app) showStatus() error {
	_ = a.coord.RequestSystemStatus()
	snap, ok := a.sessions.Snapshot()
	if !ok {
		fmt.Println("idle: not in a queue, room, or match")
	} else {
		fmt.Printf("session %s: mode=%s status=%s", snap.ID, snap.Mode, snap.Status)
		if snap.Opponent.DisplayName != "" {
			fmt.Printf(" vs %s", snap.Opponent.DisplayName)
		}
		if snap.Active() {
			fmt.Printf(", %ds remaining", match.Remaining(snap.StartedAtMs, snap.TimeLimitMs, time.Now().UnixMilli())/1000)
		}
		fmt.Println()
	}
	if status, ok := a.coord.SystemStatus(); ok {
		fmt.Printf("server: %d online, %d in queue, %d active rooms\n",
			status.OnlineUsers, status.QueueSize, status.ActiveRooms)
	}
	return nil
}

func (a *app) showHistory(ctx context.Context) error {
	results, err := a.db.RecentResults(ctx, a.cfg.HistoryLimit)
	if err != nil {
		return err
	}
	if len(results) == 0 {
		fmt.Println("no local match history yet")
		return nil
	}
	for _, r := range results {
		fmt.Printf("  %s  %-4s vs %-16s %d:%d  %s  %s\n",
			r.PlayedAt.Format("2006-01-02 15:04"), r.Outcome, r.Opponent,
			r.SelfScore, r.OpponentScore, r.Reason, r.Mode)
	}
	return nil
}

func (a *app) showProfile(ctx context.Context) error {
	p, err := a.rest.Profile(ctx)
	if err != nil {
		return err
	}
	fmt.Printf("%s: level %d (%d xp), rank #%d, %d/%d wins\n",
		p.Username, p.Level, p.XP, p.Rank, p.Wins, p.TotalMatches)
	return nil
}

func (a *app) showLeaderboard(ctx context.Context) error {
	entries, err := a.rest.Leaderboard(ctx)
	if err != nil {
		return err
	}
	for _, e := range entries {
		fmt.Printf("  #%-3d %-16s level %d  %d xp  %d wins\n", e.Rank, e.Username, e.Level, e.XP, e.Wins)
	}
	return nil
}
