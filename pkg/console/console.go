package console

import (
	"bufio"
	"fmt"
	"io"
	"log/slog"
	"strconv"
	"strings"

	"sonicdeck/pkg/queue"
	"sonicdeck/pkg/transport"
)

// Controls is the slice of the transport the console drives.
type Controls interface {
	Play()
	Pause()
	TogglePlay()
	Stop()
	Next()
	Previous()
	PlayIndex(i int)
	Seek(seconds float64)
	SeekPercent(p float64)
	SetVolume(v float64)
	ToggleMute()
	ToggleShuffle()
	SetRepeat(mode transport.RepeatMode)
	SetQueue(tracks []queue.Track)
	AddToQueue(tracks []queue.Track)
	ClearQueue()
	Status() transport.Status
}

// Library resolves playlist identifiers to tracks.
type Library interface {
	PlaylistTracks(id string) ([]queue.Track, error)
}

// Start reads commands from r and dispatches them until EOF, quit, or a
// read error. The returned channel reports why the loop ended and closes
// afterwards.
func Start(r io.Reader, out io.Writer, ctrl Controls, lib Library) chan error {
	c := make(chan error)
	go process(r, out, ctrl, lib, c)
	return c
}

func process(r io.Reader, out io.Writer, ctrl Controls, lib Library, done chan error) {
	logger := slog.Default().With("component", "console")
	defer close(done)

	sc := bufio.NewScanner(r)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" {
			continue
		}

		quit, err := dispatch(line, out, ctrl, lib)
		if err != nil {
			logger.Warn("command failed", "command", line, "error", err)
			continue
		}

		if quit {
			return
		}
	}

	if err := sc.Err(); err != nil {
		done <- err
	}
}

func dispatch(line string, out io.Writer, ctrl Controls, lib Library) (bool, error) {
	fields := strings.Fields(line)
	cmd, args := fields[0], fields[1:]

	switch cmd {
	case "play":
		ctrl.Play()
	case "pause":
		ctrl.Pause()
	case "toggle":
		ctrl.TogglePlay()
	case "stop":
		ctrl.Stop()
	case "next":
		ctrl.Next()
	case "prev":
		ctrl.Previous()
	case "jump":
		i, err := intArg(args, "jump <index>")
		if err != nil {
			return false, err
		}
		ctrl.PlayIndex(i)
	case "seek":
		s, err := floatArg(args, "seek <seconds>")
		if err != nil {
			return false, err
		}
		ctrl.Seek(s)
	case "seekpct":
		p, err := floatArg(args, "seekpct <percent>")
		if err != nil {
			return false, err
		}
		ctrl.SeekPercent(p)
	case "vol":
		v, err := floatArg(args, "vol <0..1>")
		if err != nil {
			return false, err
		}
		ctrl.SetVolume(v)
	case "mute":
		ctrl.ToggleMute()
	case "shuffle":
		ctrl.ToggleShuffle()
	case "repeat":
		if len(args) != 1 {
			return false, fmt.Errorf("usage: repeat off|one|all")
		}
		mode, err := transport.ParseRepeatMode(args[0])
		if err != nil {
			return false, err
		}
		ctrl.SetRepeat(mode)
	case "load":
		if len(args) != 1 {
			return false, fmt.Errorf("usage: load <playlist-id>")
		}
		tracks, err := lib.PlaylistTracks(args[0])
		if err != nil {
			return false, err
		}
		ctrl.SetQueue(tracks)
		ctrl.Play()
	case "add":
		if len(args) != 1 {
			return false, fmt.Errorf("usage: add <playlist-id>")
		}
		tracks, err := lib.PlaylistTracks(args[0])
		if err != nil {
			return false, err
		}
		ctrl.AddToQueue(tracks)
	case "clear":
		ctrl.ClearQueue()
	case "status":
		fmt.Fprintln(out, formatStatus(ctrl.Status()))
	case "quit", "exit":
		return true, nil
	default:
		return false, fmt.Errorf("unknown command '%s'", cmd)
	}

	return false, nil
}

func formatStatus(st transport.Status) string {
	playing := "paused"
	if st.IsPlaying {
		playing = "playing"
	}

	track := "none"
	if st.ActiveIndex >= 0 {
		track = fmt.Sprintf("%d/%d", st.ActiveIndex+1, st.QueueLength)
	}

	mute := ""
	if st.Muted {
		mute = " (muted)"
	}

	return fmt.Sprintf("%s track %s at %s/%s, volume %s%s, repeat %s, shuffle %t",
		playing, track,
		transport.FormatTime(st.Position), transport.FormatTime(st.Duration),
		transport.FormatVolume(st.Volume), mute,
		st.Repeat, st.Shuffle)
}

func intArg(args []string, usage string) (int, error) {
	if len(args) != 1 {
		return 0, fmt.Errorf("usage: %s", usage)
	}
	i, err := strconv.Atoi(args[0])
	if err != nil {
		return 0, err
	}
	return i, nil
}

func floatArg(args []string, usage string) (float64, error) {
	if len(args) != 1 {
		return 0, fmt.Errorf("usage: %s", usage)
	}
	f, err := strconv.ParseFloat(args[0], 64)
	if err != nil {
		return 0, err
	}
	return f, nil
}
