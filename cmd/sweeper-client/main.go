package main

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/sirupsen/logrus"

	"github.com/MJE43/minesweep-relay/internal/board"
	"github.com/MJE43/minesweep-relay/internal/client"
	"github.com/MJE43/minesweep-relay/internal/config"
	"github.com/MJE43/minesweep-relay/internal/game"
	"github.com/MJE43/minesweep-relay/internal/logging"
	"github.com/MJE43/minesweep-relay/internal/protocol"
	"github.com/MJE43/minesweep-relay/internal/scripting"
)

func main() {
	var (
		configPath = flag.String("config", "", "path to a YAML config file")
		local      = flag.Bool("local", false, "play in process without a server")
		scriptPath = flag.String("script", "", "JavaScript autoplayer defining move(view)")
		preset     = flag.String("preset", "", "board preset: beginner, intermediate or expert")
	)
	flag.Parse()

	if err := run(*configPath, *local, *scriptPath, *preset); err != nil {
		fmt.Fprintln(os.Stderr, "sweeper-client:", err)
		os.Exit(1)
	}
}

func run(configPath string, local bool, scriptPath, preset string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	if preset != "" {
		cfg.Client.Preset = preset
		cfg.Client.Board = game.Config{}
	}
	if scriptPath == "" {
		scriptPath = cfg.Client.Script
	}
	if err := logging.Configure(cfg.Log.Level, cfg.Log.Format); err != nil {
		return err
	}
	log := logging.New("client")

	boardCfg, err := cfg.Client.BoardConfig()
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var d client.Driver
	if local {
		l, err := client.NewLocal(boardCfg, nil)
		if err != nil {
			return err
		}
		d = l
	} else {
		c, err := client.Dial(cfg.Client.ServerAddr, client.Options{
			SetupTimeout:  cfg.Client.SetupTimeout,
			SetupRetries:  cfg.Client.SetupRetries,
			ActionTimeout: cfg.Client.ActionTimeout,
		}, log)
		if err != nil {
			return err
		}
		defer c.Close()
		if _, err := c.Setup(ctx, boardCfg); err != nil {
			return err
		}
		d = c
	}

	if scriptPath != "" {
		return autoplay(ctx, d, scriptPath, cfg.Client, log)
	}
	return interactive(ctx, d, os.Stdin, os.Stdout)
}

func autoplay(ctx context.Context, d client.Driver, path string, cfg config.ClientConfig, log *logrus.Entry) error {
	source, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read script: %w", err)
	}
	p, err := scripting.NewPlayer(string(source), scripting.Options{CallTimeout: cfg.ScriptTimeout}, log.WithField("script", path))
	if err != nil {
		return err
	}

	res, runErr := p.Run(ctx, d)
	for _, entry := range res.Logs {
		fmt.Printf("[script] %s\n", entry.Message)
	}
	if err := client.Render(os.Stdout, d.Board(), res.State); err != nil {
		return err
	}
	fmt.Printf("outcome=%s moves=%d rejected=%d\n", res.Outcome, res.Moves, res.Rejected)
	return runErr
}

// interactive reads line commands until the round ends or the player quits.
// A cleared board is claimed automatically.
func interactive(ctx context.Context, d client.Driver, in io.Reader, out io.Writer) error {
	scanner := bufio.NewScanner(in)
	for {
		state := d.Session().State()
		if err := client.Render(out, d.Board(), state); err != nil {
			return err
		}

		switch {
		case state == board.Won:
			if _, err := d.Send(ctx, protocol.Won()); err != nil {
				return err
			}
			fmt.Fprintln(out, "board cleared, you win")
			return nil
		case state == board.GameOver:
			fmt.Fprintln(out, "boom, game over")
			return nil
		case !d.Session().Playable():
			return nil
		}

		fmt.Fprint(out, "> ")
		if !scanner.Scan() {
			if err := scanner.Err(); err != nil {
				return err
			}
			_, err := d.Send(ctx, protocol.Quit())
			return err
		}

		action, err := client.ParseCommand(scanner.Text())
		if err != nil {
			fmt.Fprintln(out, err)
			continue
		}
		if _, err := d.Send(ctx, action); err != nil {
			if errors.Is(err, protocol.ErrActionRejected) {
				fmt.Fprintln(out, "move rejected:", action)
				continue
			}
			return err
		}
		if action.Kind == protocol.ActionQuit {
			return nil
		}
	}
}
