// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Bucks County Community Church

package cmd

import (
	"context"
	"fmt"
	"io"
	"sync"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"

	"github.com/BucksCountyCommunityChurch/buckschurch-scripts/internal/config"
	"github.com/BucksCountyCommunityChurch/buckschurch-scripts/internal/events"
	"github.com/BucksCountyCommunityChurch/buckschurch-scripts/internal/journal"
	"github.com/BucksCountyCommunityChurch/buckschurch-scripts/internal/listener"
	"github.com/BucksCountyCommunityChurch/buckschurch-scripts/internal/logger"
	"github.com/BucksCountyCommunityChurch/buckschurch-scripts/pkg/visca"
)

var (
	listenTUI     bool
	listenNoTUI   bool
	listenJournal string
	listenNoWatch bool
)

var listenCmd = &cobra.Command{
	Use:   "listen",
	Short: "Run the MIDI trigger listener",
	Long: `Connect to the SQ mixer and the Kramer switcher, wait for MIDI Note-On
messages on the configured channel and run the preset assigned to each note.

Features:
  - Automatic reconnection when the mixer connection drops
  - SQ-only mode when the switcher is unreachable
  - Manual triggers from the terminal UI and OSC (/preset NAME, /note N)
  - Live events on MQTT and WebSocket when configured
  - Event journal (--journal) readable with "avctl journal"
  - Presets reloaded when the configuration file changes

The terminal UI is shown when stdout is a terminal. Use --no-tui to log to
stderr instead, e.g. under systemd.`,
	Args: cobra.NoArgs,
	RunE: runListen,
}

func init() {
	rootCmd.AddCommand(listenCmd)
	listenCmd.Flags().BoolVar(&listenTUI, "tui", false, "Force the terminal UI")
	listenCmd.Flags().BoolVar(&listenNoTUI, "no-tui", false, "Disable the terminal UI")
	listenCmd.Flags().StringVarP(&listenJournal, "journal", "j", "", "Append events to this journal file")
	listenCmd.Flags().BoolVar(&listenNoWatch, "no-watch", false, "Do not reload presets when the config file changes")
}

// listenSession holds everything runListen starts
type listenSession struct {
	cfg     *config.Config
	log     *logger.Log
	sink    *events.Multi
	feed    *events.Chan
	sup     *listener.Supervisor
	osc     *listener.OSCSource
	jw      *journal.Writer
	mqtt    *events.MQTTSink
	hub     *events.Hub
	cleanup []func()
}

func (s *listenSession) close() {
	for i := len(s.cleanup) - 1; i >= 0; i-- {
		s.cleanup[i]()
	}
}

func runListen(cmd *cobra.Command, args []string) error {
	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	log, closer, err := newLogger(cfg)
	if err != nil {
		return err
	}
	defer closer.Close()

	useTUI := (isTerminal() || listenTUI) && !listenNoTUI
	if useTUI && logFile == "" && cfg.Settings.Log.File == "" {
		// Log lines would tear the alternate screen; the UI shows events
		log.SetOutput(io.Discard)
	}

	s, err := buildListener(ctx, cfg, log, useTUI)
	if err != nil {
		return err
	}
	defer s.close()

	var wg sync.WaitGroup
	runBackground := func(name string, fn func() error) {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := fn(); err != nil {
				log.WithError(err).Errorf("%s stopped", name)
			}
		}()
	}

	if s.hub != nil {
		runBackground("websocket", func() error { return s.hub.Run(ctx, cfg.Settings.WebSocket.Listen) })
	}
	if s.osc != nil {
		runBackground("osc", func() error { return s.osc.Serve(ctx) })
	}
	if !listenNoWatch {
		runBackground("config watcher", func() error {
			return config.Watch(ctx, cfg.Path, log.Module("config"), func(next *config.Config) {
				s.sup.Presets().Store(next.Presets)
				if logLevel == "" && next.Settings.Log.Level != "" {
					if err := log.SetLevel(next.Settings.Log.Level); err != nil {
						log.WithError(err).Warn("ignoring log level from reloaded config")
					}
				}
			})
		})
	}

	supDone := make(chan error, 1)
	go func() { supDone <- s.sup.Run(ctx) }()

	if useTUI {
		p := tea.NewProgram(newMonitorModel(s.sup, s.feed, cfg), tea.WithAltScreen())
		if _, err := p.Run(); err != nil {
			cancel()
			<-supDone
			wg.Wait()
			return fmt.Errorf("TUI error: %v", err)
		}
		cancel()
	}

	err = <-supDone
	cancel()
	wg.Wait()

	fmt.Println()
	fmt.Println(s.sup.Stats().String())
	if s.jw != nil {
		fmt.Printf("Journal: %d events written to %s\n", s.jw.Count(), listenJournal)
	}
	return err
}

// buildListener wires the supervisor, its event sinks and the optional
// trigger sources from cfg
func buildListener(ctx context.Context, cfg *config.Config, log *logger.Log, useTUI bool) (*listenSession, error) {
	st := cfg.Settings
	s := &listenSession{cfg: cfg, log: log, sink: events.NewMulti()}

	ok := false
	defer func() {
		if !ok {
			s.close()
		}
	}()

	elog := log.Module("events")
	s.sink.Add(events.SinkFunc(func(e events.Event) {
		elog.Info(events.FormatEvent(e))
	}))

	if useTUI {
		s.feed = events.NewChan(256)
		s.sink.Add(s.feed)
	}

	if listenJournal != "" {
		jw, err := journal.Create(listenJournal)
		if err != nil {
			return nil, err
		}
		s.jw = jw
		s.sink.Add(jw)
		s.cleanup = append(s.cleanup, func() { jw.Close() })
	}

	if st.MQTT.Broker != "" {
		conf := events.MQTTConf{
			Broker:   st.MQTT.Broker,
			ClientID: st.MQTT.ClientID,
			Username: st.MQTT.Username,
			Topic:    st.MQTT.Topic,
			QoS:      st.MQTT.QoS,
		}
		if conf.Username != "" {
			pw, err := GetPassword()
			if err != nil {
				return nil, err
			}
			conf.Password = pw
		}
		m, err := events.StartMQTT(ctx, conf, log)
		if err != nil {
			return nil, err
		}
		s.mqtt = m
		s.sink.Add(m)
		s.cleanup = append(s.cleanup, m.Stop)
	}

	if st.WebSocket.Listen != "" {
		s.hub = events.NewHub(log)
		s.sink.Add(s.hub)
	}

	execCfg, err := listener.NewExecutorConfig(st)
	if err != nil {
		return nil, err
	}
	exec := listener.NewExecutor(execCfg, log, s.sink, listener.NewStats())

	var cams listener.CameraPower
	if list := st.Cameras.List(); len(list) > 0 {
		c := visca.NewController(list, log.Module("visca"))
		if st.Cameras.Timeout > 0 {
			c.Timeout = st.Cameras.Timeout.Std()
		}
		if st.Cameras.Between > 0 {
			c.Between = st.Cameras.Between.Std()
		}
		cams = c
	}

	s.sup = listener.NewSupervisor(dialers(st, log), exec, listener.NewPresetStore(cfg.Presets), cams, log)
	s.sup.Channel = st.MIDIListener.Channel
	if st.ReconnectBackoff > 0 {
		s.sup.Backoff = st.ReconnectBackoff.Std()
	}

	if st.OSC.Listen != "" {
		s.osc = listener.NewOSCSource(s.sup.Trigger, log)
		if err := s.osc.Listen(st.OSC.Listen); err != nil {
			return nil, err
		}
	}

	log.WithField("presets", len(cfg.Presets)).
		WithField("channel", s.sup.Channel).
		Infof("listener configured from %s", cfg.Path)
	ok = true
	return s, nil
}
