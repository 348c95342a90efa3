package main

import (
	"fmt"
	"log/slog"
	"os"

	"sonicdeck/pkg/catalog"
	"sonicdeck/pkg/config"
	"sonicdeck/pkg/console"
	"sonicdeck/pkg/queue"
	"sonicdeck/pkg/sink"
	"sonicdeck/pkg/transport"
)

func main() {
	os.Exit(run())
}

func run() int {
	if len(os.Args) != 2 {
		fmt.Fprintf(os.Stderr, "Usage: %s config.yaml\n", os.Args[0])
		return 1
	}

	cfg, err := config.Load(os.Args[1])
	if err != nil {
		slog.Error("Failed to load config", "error", err)
		return 1
	}

	level, err := cfg.SlogLevel()
	if err != nil {
		slog.Error("Invalid config", "error", err)
		return 1
	}

	h := slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: level})
	slog.SetDefault(slog.New(h))

	cat, err := catalog.New(cfg)
	if err != nil {
		slog.Error("Failed to create catalog client", "error", err)
		return 1
	}

	player := sink.NewPlayer(cat.HTTPClient())
	defer player.Close()

	t := transport.New(queue.New(), player)
	defer t.Close()
	t.SetVolume(cfg.Volume)

	t.OnTrackChanged(func(tr queue.Track) {
		slog.Info("Track changed", "track_id", tr.ID, "title", tr.Title, "artist", tr.Artist)
		go cat.NowPlaying(tr.ID)
	})
	t.OnPlayStateChanged(func(playing bool) {
		slog.Info("Play state changed", "playing", playing)
	})
	t.OnTimeUpdated(func(ts transport.TimeStatus) {
		slog.Debug("Time updated",
			"position", transport.FormatTime(ts.Position),
			"duration", transport.FormatTime(ts.Duration))
	})
	t.OnEnded(func() {
		slog.Debug("Track ended")
	})
	t.OnError(func(err error) {
		slog.Warn("Playback error", "error", err)
	})

	if cfg.Playlist != "" {
		tracks, err := cat.PlaylistTracks(cfg.Playlist)
		if err != nil {
			slog.Error("Failed to load initial playlist", "playlist", cfg.Playlist, "error", err)
			return 1
		}
		t.SetQueue(tracks)
	}

	c := console.Start(os.Stdin, os.Stdout, t, cat)
	select {
	case err := <-c:
		if err != nil {
			slog.Warn("Console loop terminated", "error", err)
			return 2
		}
	case <-t.Done():
		slog.Warn("Transport terminated")
		return 2
	}

	return 0
}
