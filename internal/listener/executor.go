// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Bucks County Community Church

// Package listener turns MIDI Note-Ons from the mixer into preset runs
// across the mixer, the video switcher and the cameras, and keeps the
// connections alive.
package listener

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/BucksCountyCommunityChurch/buckschurch-scripts/internal/config"
	"github.com/BucksCountyCommunityChurch/buckschurch-scripts/internal/events"
	"github.com/BucksCountyCommunityChurch/buckschurch-scripts/internal/logger"
	"github.com/BucksCountyCommunityChurch/buckschurch-scripts/pkg/proto3k"
	"github.com/BucksCountyCommunityChurch/buckschurch-scripts/pkg/sqmidi"
	"github.com/BucksCountyCommunityChurch/buckschurch-scripts/pkg/transport"
	"github.com/BucksCountyCommunityChurch/buckschurch-scripts/pkg/visca"
)

// ErrBadAction is wrapped by every action resolution failure
var ErrBadAction = errors.New("bad action")

// Device names used in logs and events
const (
	DeviceSQ      = "sq"
	DeviceKramer  = "kramer"
	DeviceCameras = "cameras"
)

// SQSender sends MIDI messages to the mixer. *sqmidi.Link implements it.
type SQSender interface {
	Send(ctx context.Context, m sqmidi.Message) error
}

// KramerClient runs correlated switcher commands. *proto3k.Client
// implements it.
type KramerClient interface {
	Do(ctx context.Context, cmd proto3k.Command) proto3k.Result
	Close() error
	String() string
}

// CameraPower switches the cameras. *visca.Controller implements it.
type CameraPower interface {
	PowerAll(ctx context.Context, on bool) []visca.Result
}

// Devices are the targets of one preset run. A nil device is skipped.
type Devices struct {
	SQ      SQSender
	Kramer  KramerClient
	Cameras CameraPower
}

// Report summarizes one preset run
type Report struct {
	Preset   string
	Sent     int // commands delivered successfully
	Failed   int // commands sent but not confirmed, or not sent
	Invalid  int // actions that did not resolve
	Skipped  int // actions for a missing device
	Duration time.Duration

	// TransportErr is set when a connection broke during the run
	TransportErr error
}

// OK reports whether every action succeeded
func (r Report) OK() bool {
	return r.Failed == 0 && r.Invalid == 0 && r.TransportErr == nil
}

func (r Report) String() string {
	return fmt.Sprintf("sent=%d failed=%d invalid=%d skipped=%d in %s",
		r.Sent, r.Failed, r.Invalid, r.Skipped, r.Duration.Round(time.Millisecond))
}

// ExecutorConfig holds the mixer-side parameters for resolving actions
type ExecutorConfig struct {
	Channel int // SQ MIDI channel, 1-16
	Banking sqmidi.SceneBanking
	Taper   sqmidi.TaperTable
}

// NewExecutorConfig extracts the executor parameters from settings
func NewExecutorConfig(s config.Settings) (ExecutorConfig, error) {
	banking, err := s.SQ.Banking()
	if err != nil {
		return ExecutorConfig{}, err
	}
	taper, err := s.SQ.TaperTable()
	if err != nil {
		return ExecutorConfig{}, err
	}
	return ExecutorConfig{Channel: s.SQ.MIDIChannel, Banking: banking, Taper: taper}, nil
}

// Executor runs presets
type Executor struct {
	cfg   ExecutorConfig
	log   *logger.Log
	sink  events.Sink
	stats *Stats
}

// NewExecutor creates an executor. sink and stats may be nil.
func NewExecutor(cfg ExecutorConfig, log *logger.Log, sink events.Sink, stats *Stats) *Executor {
	if sink == nil {
		sink = events.Discard
	}
	if stats == nil {
		stats = NewStats()
	}
	if cfg.Channel == 0 {
		cfg.Channel = config.DefaultChannel
	}
	if len(cfg.Taper) == 0 {
		cfg.Taper = sqmidi.DefaultTaper
	}
	return &Executor{cfg: cfg, log: log.Module("executor"), sink: sink, stats: stats}
}

// SQStep is a resolved SQ action: a message to send or a pause
type SQStep struct {
	Message sqmidi.Message
	Wait    time.Duration
}

func (s SQStep) name() string {
	if s.Message.Name == "" {
		return fmt.Sprintf("Wait (%s)", s.Wait)
	}
	return s.Message.Name
}

// ResolveSQ turns an SQ preset action into a message or a pause
func (e *Executor) ResolveSQ(a config.Action) (SQStep, error) {
	var (
		msg sqmidi.Message
		err error
	)
	switch a.Command {
	case "RecallScene":
		var scene int
		if scene, err = a.Int(0); err == nil {
			msg, err = sqmidi.NewRecallScene(e.cfg.Channel, scene, e.cfg.Banking)
		}
	case "SetMute":
		var on bool
		if on, err = a.Bool(2); err == nil {
			msg, err = sqmidi.NewSetMute(e.cfg.Channel, a.Args[0], a.Args[1], on)
		}
	case "SetFaderLevel":
		var db float64
		if db, err = a.Float(2); err == nil {
			msg, err = sqmidi.NewSetFaderLevel(e.cfg.Channel, a.Args[0], a.Args[1], e.cfg.Taper.Level(db))
		}
	case "SetPan":
		var pan float64
		if pan, err = a.Float(2); err == nil {
			msg, err = sqmidi.NewSetPan(e.cfg.Channel, a.Args[0], a.Args[1], sqmidi.PanToValue(pan))
		}
	case "SetAssign":
		var on bool
		if on, err = a.Bool(2); err == nil {
			msg, err = sqmidi.NewSetAssign(e.cfg.Channel, a.Args[0], a.Args[1], on)
		}
	case "Wait":
		var s string
		if s, err = a.Str(0); err == nil {
			var d time.Duration
			if d, err = config.ParseDuration(s); err == nil && d < 0 {
				err = fmt.Errorf("negative wait %s", d)
			}
			return SQStep{Wait: d}, wrapBad(a, err)
		}
	default:
		err = fmt.Errorf("unknown SQ command %q", a.Command)
	}
	return SQStep{Message: msg}, wrapBad(a, err)
}

// ResolveKramer turns a Kramer preset action into a switcher command.
// Route takes [src, dest, layer] and VideoMute takes [flag, dest]; dest
// and layer default to 1.
func (e *Executor) ResolveKramer(a config.Action) (proto3k.Command, error) {
	var (
		cmd proto3k.Command
		err error
	)
	switch a.Command {
	case "Route":
		var src int
		if src, err = a.Int(0); err != nil {
			break
		}
		dest, layer := 1, proto3k.LayerVideo
		if len(a.Args) > 1 {
			if dest, err = a.Int(1); err != nil {
				break
			}
		}
		if len(a.Args) > 2 {
			if layer, err = a.Int(2); err != nil {
				break
			}
		}
		cmd, err = proto3k.NewRoute(layer, dest, src)
	case "VideoMute":
		var s string
		if s, err = a.Str(0); err != nil {
			break
		}
		var flag proto3k.MuteFlag
		if flag, err = proto3k.ParseMuteFlag(s); err != nil {
			break
		}
		dest := 1
		if len(a.Args) > 1 {
			if dest, err = a.Int(1); err != nil {
				break
			}
		}
		cmd, err = proto3k.NewVideoMute(dest, flag)
	default:
		err = fmt.Errorf("unknown Kramer command %q", a.Command)
	}
	return cmd, wrapBad(a, err)
}

// ResolveCamera turns a camera preset action into a power state
func (e *Executor) ResolveCamera(a config.Action) (bool, error) {
	switch a.Command {
	case "Power":
		on, err := a.Bool(0)
		return on, wrapBad(a, err)
	case "PowerOn":
		return true, nil
	case "PowerOff":
		return false, nil
	default:
		return false, wrapBad(a, fmt.Errorf("unknown Cameras command %q", a.Command))
	}
}

func wrapBad(a config.Action, err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%w: %s: %w", ErrBadAction, a, err)
}

// Run executes the preset's SQ, Kramer and camera actions in that order.
// Failures are logged and counted; the run always continues with the next
// action.
func (e *Executor) Run(ctx context.Context, dev Devices, name string, p config.Preset) Report {
	start := time.Now()
	rep := Report{Preset: name}
	log := e.log.With(logger.Fields{"preset": name})

	log.Infof("--- EXECUTING PRESET: %s (%d actions) ---", name, p.Len())
	e.sink.Publish(events.Event{Kind: events.KindPreset, Preset: name, Status: "running"})

	e.runSQ(ctx, dev.SQ, name, p.SQ, &rep, log)
	e.runKramer(ctx, dev.Kramer, name, p.Kramer, &rep, log)
	e.runCameras(ctx, dev.Cameras, name, p.Cameras, &rep, log)

	rep.Duration = time.Since(start)
	e.stats.RecordPreset()

	status := "done"
	if !rep.OK() {
		status = "partial"
	}
	log.Infof("--- PRESET %s COMPLETE: %s ---", name, rep)
	e.sink.Publish(events.Event{Kind: events.KindPreset, Preset: name, Status: status, Detail: rep.String()})
	return rep
}

func (e *Executor) skip(device, name string, actions []config.Action, rep *Report, log *logger.Log) bool {
	if len(actions) == 0 {
		return false
	}
	log.Warnf("%s not connected, skipping %d %s action(s)", device, len(actions), device)
	rep.Skipped += len(actions)
	e.sink.Publish(events.Event{
		Kind:   events.KindCommand,
		Device: device,
		Preset: name,
		Status: "skipped",
		Detail: fmt.Sprintf("%d action(s), device not connected", len(actions)),
	})
	return true
}

func (e *Executor) invalid(device, name string, err error, rep *Report, log *logger.Log) {
	rep.Invalid++
	e.stats.RecordInvalid()
	log.WithField("device", device).Errorf("%v", err)
	e.sink.Publish(events.Event{Kind: events.KindError, Device: device, Preset: name, Status: "invalid", Detail: err.Error()})
}

func (e *Executor) runSQ(ctx context.Context, sq SQSender, name string, actions []config.Action, rep *Report, log *logger.Log) {
	if sq == nil {
		e.skip(DeviceSQ, name, actions, rep, log)
		return
	}
	for _, a := range actions {
		if ctx.Err() != nil {
			return
		}
		step, err := e.ResolveSQ(a)
		if err != nil {
			e.invalid(DeviceSQ, name, err, rep, log)
			continue
		}

		if step.Message.Name == "" {
			log.Infof("[Wait] pausing for %s", step.Wait)
			select {
			case <-ctx.Done():
				return
			case <-time.After(step.Wait):
			}
			continue
		}

		ev := events.Event{Kind: events.KindCommand, Device: DeviceSQ, Preset: name, Command: step.name()}
		if err := sq.Send(ctx, step.Message); err != nil {
			rep.Failed++
			e.stats.RecordCommand(proto3k.StatusSendError)
			if isTransport(err) && rep.TransportErr == nil {
				rep.TransportErr = err
			}
			ev.Status = proto3k.StatusSendError.String()
			ev.Detail = err.Error()
			log.WithField("device", DeviceSQ).Errorf("%s failed: %v", step.name(), err)
		} else {
			rep.Sent++
			e.stats.RecordCommand(proto3k.StatusSuccess)
			ev.Status = proto3k.StatusSuccess.String()
			ev.Detail = step.Message.Hex()
		}
		e.sink.Publish(ev)
	}
}

func (e *Executor) runKramer(ctx context.Context, kr KramerClient, name string, actions []config.Action, rep *Report, log *logger.Log) {
	if kr == nil {
		e.skip(DeviceKramer, name, actions, rep, log)
		return
	}
	for _, a := range actions {
		if ctx.Err() != nil {
			return
		}
		cmd, err := e.ResolveKramer(a)
		if err != nil {
			e.invalid(DeviceKramer, name, err, rep, log)
			continue
		}

		res := kr.Do(ctx, cmd)
		e.stats.RecordCommand(res.Status)

		klog := log.With(logger.Fields{
			"device":   DeviceKramer,
			"payload":  fmt.Sprintf("%q", cmd.Payload),
			"response": strings.TrimSpace(res.Response),
			"attempts": res.Attempts,
		})
		ev := events.Event{
			Kind:    events.KindCommand,
			Device:  DeviceKramer,
			Preset:  name,
			Command: cmd.Name,
			Status:  res.Status.String(),
		}
		if res.OK() {
			rep.Sent++
			ev.Detail = res.Summary
			klog.Infof("%s: %s", cmd.Name, strings.ReplaceAll(res.Summary, "\n", ", "))
		} else {
			rep.Failed++
			if res.Err != nil {
				ev.Detail = res.Err.Error()
			}
			if res.Status == proto3k.StatusSendError || isTransport(res.Err) {
				if rep.TransportErr == nil {
					rep.TransportErr = res.Err
				}
			}
			klog.Errorf("%s %s: %v", cmd.Name, res.Status, res.Err)
		}
		e.sink.Publish(ev)
	}
}

func (e *Executor) runCameras(ctx context.Context, cams CameraPower, name string, actions []config.Action, rep *Report, log *logger.Log) {
	if cams == nil {
		e.skip(DeviceCameras, name, actions, rep, log)
		return
	}
	for _, a := range actions {
		if ctx.Err() != nil {
			return
		}
		on, err := e.ResolveCamera(a)
		if err != nil {
			e.invalid(DeviceCameras, name, err, rep, log)
			continue
		}

		for _, r := range cams.PowerAll(ctx, on) {
			ev := events.Event{
				Kind:    events.KindCommand,
				Device:  DeviceCameras,
				Preset:  name,
				Command: fmt.Sprintf("Power %s (%s)", onOff(on), r.Camera),
			}
			if r.OK() {
				rep.Sent++
				e.stats.RecordCommand(proto3k.StatusSuccess)
				ev.Status = proto3k.StatusSuccess.String()
			} else {
				rep.Failed++
				status := proto3k.StatusSendError
				if errors.Is(r.Err, visca.ErrCamera) {
					status = proto3k.StatusRejected
				}
				e.stats.RecordCommand(status)
				ev.Status = status.String()
				ev.Detail = r.Err.Error()
			}
			e.sink.Publish(ev)
		}
	}
}

// isTransport reports whether err means the connection is unusable
func isTransport(err error) bool {
	var se *transport.SendError
	return errors.Is(err, transport.ErrClosed) || errors.As(err, &se)
}

func onOff(on bool) string {
	if on {
		return "on"
	}
	return "off"
}
