package link

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"go.bug.st/serial"
	"go.uber.org/zap"

	"github.com/gwillem/ringbot/pkg/robot"
)

// ErrClosed is returned by requests after the link went down.
var ErrClosed = errors.New("link closed")

type reply struct {
	verb string
	args *args
}

// Client is a robot.Chassis backed by a motion controller on a serial line.
type Client struct {
	rw     io.ReadWriteCloser
	logger *zap.SugaredLogger

	wmu sync.Mutex // serializes line writes

	mu      sync.Mutex
	nextID  uint64
	pending map[uint64]chan reply
	err     error

	done chan struct{}
}

// Open connects to the controller on a serial port.
func Open(port string, baud int, logger *zap.SugaredLogger) (*Client, error) {
	p, err := serial.Open(port, &serial.Mode{BaudRate: baud})
	if err != nil {
		return nil, fmt.Errorf("open chassis port %s: %w", port, err)
	}
	return NewClient(p, logger), nil
}

// NewClient runs the protocol over rw and takes ownership of it.
func NewClient(rw io.ReadWriteCloser, logger *zap.SugaredLogger) *Client {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	c := &Client{
		rw:      rw,
		logger:  logger,
		pending: make(map[uint64]chan reply),
		done:    make(chan struct{}),
	}
	go c.readLoop()
	return c
}

// Close closes the line. Pending requests fail with ErrClosed.
func (c *Client) Close() error {
	err := c.rw.Close()
	<-c.done
	return err
}

func (c *Client) readLoop() {
	defer close(c.done)

	sc := bufio.NewScanner(c.rw)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" {
			continue
		}
		id, verb, a, err := splitLine(line)
		if err != nil {
			c.logger.Debugw("malformed controller reply", "error", err)
			continue
		}

		c.mu.Lock()
		ch, ok := c.pending[id]
		delete(c.pending, id)
		c.mu.Unlock()
		if !ok {
			c.logger.Debugw("reply to abandoned request", "id", id, "verb", verb)
			continue
		}
		ch <- reply{verb: verb, args: a}
	}

	err := sc.Err()
	if err == nil {
		err = io.EOF
	}
	c.mu.Lock()
	c.err = fmt.Errorf("%w: %v", ErrClosed, err)
	for id, ch := range c.pending {
		close(ch)
		delete(c.pending, id)
	}
	c.mu.Unlock()
}

// request sends one command and waits for its reply.
func (c *Client) request(ctx context.Context, verb string, fields ...string) (reply, error) {
	c.mu.Lock()
	if c.err != nil {
		err := c.err
		c.mu.Unlock()
		return reply{}, err
	}
	c.nextID++
	id := c.nextID
	ch := make(chan reply, 1)
	c.pending[id] = ch
	c.mu.Unlock()

	line := fmt.Sprintf("%d %s", id, verb)
	if len(fields) > 0 {
		line += " " + strings.Join(fields, " ")
	}

	c.wmu.Lock()
	_, err := io.WriteString(c.rw, line+"\n")
	c.wmu.Unlock()
	if err != nil {
		c.forget(id)
		return reply{}, fmt.Errorf("write %s: %w", verb, err)
	}

	select {
	case <-ctx.Done():
		c.forget(id)
		return reply{}, ctx.Err()
	case r, ok := <-ch:
		if !ok {
			c.mu.Lock()
			err := c.err
			c.mu.Unlock()
			return reply{}, err
		}
		if r.verb == replyErr {
			return reply{}, fmt.Errorf("%s: controller: %s", verb, strings.Join(r.args.fields, " "))
		}
		return r, nil
	}
}

func (c *Client) forget(id uint64) {
	c.mu.Lock()
	delete(c.pending, id)
	c.mu.Unlock()
}

func (c *Client) expect(ctx context.Context, want, verb string, fields ...string) error {
	r, err := c.request(ctx, verb, fields...)
	if err != nil {
		return err
	}
	if r.verb != want {
		return fmt.Errorf("%s: unexpected reply %q", verb, r.verb)
	}
	return nil
}

func (c *Client) SetPose(ctx context.Context, p robot.Pose) error {
	return c.expect(ctx, replyOK, cmdPose, num(p.X), num(p.Y), num(p.Theta))
}

func (c *Client) MoveToPoint(ctx context.Context, target robot.Point, timeout time.Duration, params robot.MoveParams) error {
	fields := append([]string{num(target.X), num(target.Y), ms(timeout)}, paramArgs(params)...)
	return c.expect(ctx, replyOK, cmdPoint, fields...)
}

func (c *Client) MoveToPose(ctx context.Context, target robot.Pose, timeout time.Duration, params robot.MoveParams) error {
	fields := append([]string{num(target.X), num(target.Y), num(target.Theta), ms(timeout)}, paramArgs(params)...)
	return c.expect(ctx, replyOK, cmdMovePose, fields...)
}

func (c *Client) TurnToHeading(ctx context.Context, heading float64, timeout time.Duration) error {
	return c.expect(ctx, replyOK, cmdHeading, num(heading), ms(timeout))
}

func (c *Client) TurnToPoint(ctx context.Context, target robot.Point, timeout time.Duration) error {
	return c.expect(ctx, replyOK, cmdFace, num(target.X), num(target.Y), ms(timeout))
}

func (c *Client) WaitUntilDone(ctx context.Context) error {
	return c.expect(ctx, replyDone, cmdWait)
}

func (c *Client) SetBrakeMode(ctx context.Context, mode robot.BrakeMode) error {
	return c.expect(ctx, replyOK, cmdBrake, mode.String())
}

func (c *Client) Arcade(ctx context.Context, throttle, turn int) error {
	return c.expect(ctx, replyOK, cmdArcade, fmt.Sprint(throttle), fmt.Sprint(turn))
}

// Pose asks the controller for its odometry pose.
func (c *Client) Pose(ctx context.Context) (robot.Pose, error) {
	r, err := c.request(ctx, cmdGetPose)
	if err != nil {
		return robot.Pose{}, err
	}
	if r.verb != replyPose {
		return robot.Pose{}, fmt.Errorf("getpose: unexpected reply %q", r.verb)
	}
	p := r.args.pose()
	if r.args.err != nil {
		return robot.Pose{}, fmt.Errorf("getpose: %w", r.args.err)
	}
	return p, nil
}
