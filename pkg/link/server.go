package link

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"
	"sync"

	"go.uber.org/zap"

	"github.com/gwillem/ringbot/pkg/robot"
)

// Serve answers protocol requests from rw using chassis, until rw reaches EOF or ctx is
// done. Waits run concurrently so a newer command can supersede the motion being waited
// on; every other command is applied in arrival order.
func Serve(ctx context.Context, rw io.ReadWriter, chassis robot.Chassis, logger *zap.SugaredLogger) error {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var wmu sync.Mutex
	respond := func(id uint64, verb string, fields ...string) {
		line := fmt.Sprintf("%d %s", id, verb)
		if len(fields) > 0 {
			line += " " + strings.Join(fields, " ")
		}
		wmu.Lock()
		defer wmu.Unlock()
		if _, err := io.WriteString(rw, line+"\n"); err != nil {
			logger.Debugw("reply write failed", "error", err)
		}
	}
	result := func(id uint64, err error) {
		if err != nil {
			respond(id, replyErr, err.Error())
			return
		}
		respond(id, replyOK)
	}

	var wg sync.WaitGroup
	defer func() {
		cancel()
		wg.Wait()
	}()

	sc := bufio.NewScanner(rw)
	for sc.Scan() {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		line := strings.TrimSpace(sc.Text())
		if line == "" {
			continue
		}
		id, verb, a, err := splitLine(line)
		if err != nil {
			logger.Debugw("malformed request", "error", err)
			continue
		}

		switch verb {
		case cmdPose:
			p := a.pose()
			result(id, firstErr(a.err, func() error { return chassis.SetPose(ctx, p) }))
		case cmdPoint:
			target, timeout, params := a.point(), a.duration(), a.params()
			result(id, firstErr(a.err, func() error { return chassis.MoveToPoint(ctx, target, timeout, params) }))
		case cmdMovePose:
			target, timeout, params := a.pose(), a.duration(), a.params()
			result(id, firstErr(a.err, func() error { return chassis.MoveToPose(ctx, target, timeout, params) }))
		case cmdHeading:
			heading, timeout := a.float(), a.duration()
			result(id, firstErr(a.err, func() error { return chassis.TurnToHeading(ctx, heading, timeout) }))
		case cmdFace:
			target, timeout := a.point(), a.duration()
			result(id, firstErr(a.err, func() error { return chassis.TurnToPoint(ctx, target, timeout) }))
		case cmdBrake:
			mode, err := robot.ParseBrakeMode(a.next())
			if a.err != nil {
				err = a.err
			}
			result(id, firstErr(err, func() error { return chassis.SetBrakeMode(ctx, mode) }))
		case cmdArcade:
			throttle, turn := a.int(), a.int()
			result(id, firstErr(a.err, func() error { return chassis.Arcade(ctx, throttle, turn) }))
		case cmdWait:
			wg.Add(1)
			go func() {
				defer wg.Done()
				if err := chassis.WaitUntilDone(ctx); err != nil {
					respond(id, replyErr, err.Error())
					return
				}
				respond(id, replyDone)
			}()
		case cmdGetPose:
			pr, ok := chassis.(robot.PoseReader)
			if !ok {
				respond(id, replyErr, "pose not available")
				continue
			}
			p, err := pr.Pose(ctx)
			if err != nil {
				respond(id, replyErr, err.Error())
				continue
			}
			respond(id, replyPose, num(p.X), num(p.Y), num(p.Theta))
		default:
			respond(id, replyErr, "unknown command "+verb)
		}
	}
	if err := sc.Err(); err != nil {
		return fmt.Errorf("read requests: %w", err)
	}
	return nil
}

func firstErr(err error, fn func() error) error {
	if err != nil {
		return err
	}
	return fn()
}
