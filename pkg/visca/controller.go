// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Bucks County Community Church

package visca

import (
	"context"
	"fmt"
	"io"
	"net"
	"strconv"
	"time"

	"github.com/BucksCountyCommunityChurch/buckschurch-scripts/pkg/transport"
	"github.com/sirupsen/logrus"
)

// Camera is one VISCA-over-TCP camera
type Camera struct {
	Host string
	Port int // 0 means DefaultPort
	Addr int // 0 means 1
}

func (c Camera) String() string {
	port := c.Port
	if port == 0 {
		port = DefaultPort
	}
	return net.JoinHostPort(c.Host, strconv.Itoa(port))
}

// Result is the outcome for one camera
type Result struct {
	Camera  Camera
	Replies []Reply
	Err     error
}

// OK reports whether the command was delivered without an error reply
func (r Result) OK() bool {
	return r.Err == nil
}

// Controller sends the same command to a list of cameras in turn
type Controller struct {
	Cameras []Camera
	Timeout time.Duration // connect and reply wait, per camera
	Between time.Duration // pause after each camera
	log     logrus.FieldLogger
}

// NewController creates a controller with default timing. A nil logger
// discards output.
func NewController(cameras []Camera, log logrus.FieldLogger) *Controller {
	if log == nil {
		l := logrus.New()
		l.SetOutput(io.Discard)
		log = l
	}
	return &Controller{
		Cameras: cameras,
		Timeout: DefaultTimeout,
		Between: DefaultBetween,
		log:     log,
	}
}

// PowerAll turns every camera on or off. A camera that cannot be reached
// is reported in its Result and does not stop the others.
func (c *Controller) PowerAll(ctx context.Context, on bool) []Result {
	results := make([]Result, 0, len(c.Cameras))
	for i, cam := range c.Cameras {
		if i > 0 && c.Between > 0 {
			select {
			case <-ctx.Done():
				for _, rest := range c.Cameras[i:] {
					results = append(results, Result{Camera: rest, Err: ctx.Err()})
				}
				return results
			case <-time.After(c.Between):
			}
		}
		results = append(results, c.power(ctx, cam, on))
	}
	return results
}

func (c *Controller) power(ctx context.Context, cam Camera, on bool) Result {
	res := Result{Camera: cam}
	log := c.log.WithField("camera", cam.String())

	addr := cam.Addr
	if addr == 0 {
		addr = 1
	}
	pkt, err := Power(addr, on)
	if err != nil {
		res.Err = err
		return res
	}

	port := cam.Port
	if port == 0 {
		port = DefaultPort
	}
	log.Debug("connecting")
	conn, err := transport.Dial(ctx, cam.Host, port, c.Timeout)
	if err != nil {
		log.WithError(err).Error("connect failed")
		res.Err = err
		return res
	}
	defer conn.Close()

	replies, err := exchange(conn, pkt, c.Timeout)
	res.Replies = replies
	res.Err = err
	if err != nil {
		log.WithError(err).Errorf("power %s failed", onOff(on))
	} else {
		log.Infof("power %s sent", onOff(on))
	}
	return res
}

// PowerSerial sends power on or off to one camera on an RS-232 chain
func PowerSerial(conn *transport.Conn, addr int, on bool, timeout time.Duration) ([]Reply, error) {
	pkt, err := Power(addr, on)
	if err != nil {
		return nil, err
	}
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return exchange(conn, pkt, timeout)
}

// exchange sends pkt and reads whatever reply arrives within timeout.
// Cameras that stay silent are not an error.
func exchange(conn *transport.Conn, pkt []byte, timeout time.Duration) ([]Reply, error) {
	if err := conn.Send(pkt); err != nil {
		return nil, err
	}
	conn.SetReadTimeout(timeout)
	var data []byte
	for {
		// A hang-up after the command is fine; the command went out
		chunk, _ := conn.Receive()
		if len(chunk) == 0 {
			break
		}
		data = append(data, chunk...)
		// Serial links can split a reply across reads
		if data[len(data)-1] == terminator {
			break
		}
	}
	if len(data) == 0 {
		return nil, nil
	}

	replies, perr := ParseReplies(data)
	for _, r := range replies {
		if rerr := r.Err(); rerr != nil {
			return replies, rerr
		}
	}
	return replies, perr
}

func onOff(on bool) string {
	if on {
		return "on"
	}
	return "off"
}

// Summary renders results one line per camera
func Summary(results []Result) string {
	var s string
	for _, r := range results {
		status := "ok"
		if r.Err != nil {
			status = "FAILED: " + r.Err.Error()
		}
		s += fmt.Sprintf("%-22s %s\n", r.Camera, status)
	}
	return s
}
