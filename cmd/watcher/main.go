package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"log/slog"
	"net/url"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/sharetube/syncstream/internal/client"
	"github.com/sharetube/syncstream/internal/domain"
	"github.com/sharetube/syncstream/internal/player/virtual"
	"github.com/sharetube/syncstream/pkg/ctxlogger"
)

var rootCmd = &cobra.Command{
	Use:   "watcher",
	Short: "Headless room member that keeps a simulated player in sync",
	RunE:  runWatcher,
}

func init() {
	flags := rootCmd.PersistentFlags()
	flags.String("server-url", "ws://localhost:80", "authority base websocket URL")
	flags.String("room", "", "room id to join; a new room is created when empty")
	flags.String("username", "watcher", "display name")
	flags.String("load", "", "video id to load once this member is host")
	flags.Bool("autoplay", false, "start playback after the video is loaded, host only")
	flags.Duration("load-delay", 300*time.Millisecond, "simulated player load time")
	flags.Duration("video-duration", 0, "simulated video length, zero for endless")
	flags.StringSlice("unavailable", nil, "video ids the simulated player fails to load")
	flags.Duration("reconnect-delay", 2*time.Second, "wait between reconnect attempts")
	flags.Duration("status-interval", 5*time.Second, "how often the sync status is logged")
	flags.String("log-level", "info", "logging level")

	viper.BindPFlags(flags)
	viper.SetEnvPrefix("WATCHER")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		log.Fatal(err)
	}
}

// connSender forwards to whichever connection is current, so one machine
// survives reconnects.
type connSender struct {
	mu   sync.Mutex
	conn *client.Conn
}

func (s *connSender) set(conn *client.Conn) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.conn = conn
}

func (s *connSender) Send(ctx context.Context, msgType string, payload any) error {
	s.mu.Lock()
	conn := s.conn
	s.mu.Unlock()

	if conn == nil {
		return errors.New("not connected")
	}

	return conn.Send(ctx, msgType, payload)
}

func runWatcher(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var level slog.Level
	if err := level.UnmarshalText([]byte(viper.GetString("log-level"))); err != nil {
		return fmt.Errorf("invalid log level: %w", err)
	}
	logger := slog.New(&ctxlogger.ContextHandler{
		Handler: slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: level}),
	})

	clock := clockwork.NewRealClock()
	sender := &connSender{}

	cfg := client.DefaultConfig()
	cfg.OnNotice = func(notice string) {
		logger.WarnContext(ctx, "notice", "message", notice)
	}

	var machine *client.Machine
	player := virtual.New(clock, virtual.Config{
		LoadDelay:   viper.GetDuration("load-delay"),
		Duration:    viper.GetDuration("video-duration"),
		Unavailable: viper.GetStringSlice("unavailable"),
	}, func(ev client.PlayerEvent) {
		machine.HandlePlayerEvent(ev)
	})
	defer player.Close()

	machine = client.NewMachine(player, sender, clock, cfg, logger)
	defer machine.Close()

	go reportStatus(ctx, clock, machine, logger, viper.GetDuration("status-interval"))
	go driveHost(ctx, clock, machine, player, logger)

	roomID := viper.GetString("room")
	for {
		joinedRoomID, err := session(ctx, machine, sender, roomID, logger)
		if joinedRoomID != "" {
			roomID = joinedRoomID
		}
		if errors.Is(err, client.ErrRoomNotFound) {
			logger.InfoContext(ctx, "room is gone, creating a new one", "room_id", roomID)
			roomID = ""
			continue
		}
		if ctx.Err() != nil {
			return nil
		}

		logger.WarnContext(ctx, "disconnected", "error", err, "retry_in", viper.GetDuration("reconnect-delay"))
		select {
		case <-ctx.Done():
			return nil
		case <-clock.After(viper.GetDuration("reconnect-delay")):
		}
	}
}

// session runs one connection to the authority and returns the room it
// joined.
func session(ctx context.Context, machine *client.Machine, sender *connSender, roomID string, logger *slog.Logger) (string, error) {
	endpoint, err := roomURL(viper.GetString("server-url"), roomID, viper.GetString("username"))
	if err != nil {
		return "", err
	}

	conn, err := client.Dial(ctx, endpoint, logger)
	if err != nil {
		return "", err
	}
	defer conn.Close()

	sender.set(conn)
	defer sender.set(nil)

	err = conn.Run(ctx, machine)

	return conn.RoomID(), err
}

func roomURL(base, roomID, username string) (string, error) {
	u, err := url.Parse(strings.TrimSuffix(base, "/"))
	if err != nil {
		return "", fmt.Errorf("invalid server url: %w", err)
	}

	if roomID == "" {
		u.Path += "/api/v1/ws/room/create"
	} else {
		u.Path += "/api/v1/ws/room/" + url.PathEscape(roomID) + "/join"
	}
	u.RawQuery = url.Values{"username": {username}}.Encode()

	return u.String(), nil
}

func reportStatus(ctx context.Context, clock clockwork.Clock, machine *client.Machine, logger *slog.Logger, interval time.Duration) {
	ticker := clock.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.Chan():
			state := machine.State()
			logger.InfoContext(ctx, "status",
				"role", state.Role,
				"phase", state.Phase,
				"video_id", state.VideoID,
				"latency_s", state.EstimatedOneWayLatencySeconds,
			)
		}
	}
}

// driveHost performs the --load and --autoplay actions the first time this
// member is host with nothing loaded.
func driveHost(ctx context.Context, clock clockwork.Clock, machine *client.Machine, player *virtual.Player, logger *slog.Logger) {
	videoID := viper.GetString("load")
	if videoID == "" {
		return
	}

	ticker := clock.NewTicker(100 * time.Millisecond)
	defer ticker.Stop()

	loaded := false
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.Chan():
		}

		state := machine.State()
		if state.Role != domain.RoleHost {
			continue
		}

		if !loaded {
			if state.VideoID != "" {
				return
			}
			if state.Phase != domain.PhaseIdle {
				continue
			}
			if err := machine.LoadVideo(ctx, videoID); err != nil {
				logger.WarnContext(ctx, "failed to load video", "video_id", videoID, "error", err)
				return
			}
			loaded = true
			continue
		}

		if state.Phase != domain.PhaseSynced {
			continue
		}

		if viper.GetBool("autoplay") {
			if err := player.Play(); err != nil {
				logger.WarnContext(ctx, "failed to start playback", "error", err)
			}
		}
		return
	}
}
