// Package link talks to the external drivetrain motion controller over a serial line.
//
// Every request is one line "<id> <command> <args...>"; the controller answers each with
// "<id> ok", "<id> err <message>", "<id> done" (for wait) or "<id> pose <x> <y> <theta>"
// (for getpose). Ids let a reply to an abandoned wait arrive late without confusing the
// next command. Lengths are inches, angles degrees and timeouts milliseconds.
package link

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/gwillem/ringbot/pkg/robot"
)

const (
	cmdPose     = "pose"
	cmdPoint    = "point"
	cmdMovePose = "movepose"
	cmdHeading  = "heading"
	cmdFace     = "face"
	cmdWait     = "wait"
	cmdBrake    = "brake"
	cmdArcade   = "arcade"
	cmdGetPose  = "getpose"

	replyOK   = "ok"
	replyErr  = "err"
	replyDone = "done"
	replyPose = "pose"
)

func num(f float64) string {
	return strconv.FormatFloat(f, 'f', -1, 64)
}

func ms(d time.Duration) string {
	return strconv.FormatInt(d.Milliseconds(), 10)
}

func boolArg(b bool) string {
	if b {
		return "1"
	}
	return "0"
}

func paramArgs(p robot.MoveParams) []string {
	return []string{boolArg(p.Forwards), strconv.Itoa(p.MaxSpeed), strconv.Itoa(p.MinSpeed), num(p.EarlyExitRange)}
}

// args decodes the arguments of one request or reply line.
type args struct {
	fields []string
	err    error
}

func (a *args) next() string {
	if a.err != nil {
		return ""
	}
	if len(a.fields) == 0 {
		a.err = fmt.Errorf("missing argument")
		return ""
	}
	s := a.fields[0]
	a.fields = a.fields[1:]
	return s
}

func (a *args) float() float64 {
	s := a.next()
	if a.err != nil {
		return 0
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		a.err = fmt.Errorf("bad number %q", s)
	}
	return f
}

func (a *args) int() int {
	s := a.next()
	if a.err != nil {
		return 0
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		a.err = fmt.Errorf("bad integer %q", s)
	}
	return n
}

func (a *args) duration() time.Duration {
	return time.Duration(a.int()) * time.Millisecond
}

func (a *args) bool() bool {
	return a.next() == "1"
}

func (a *args) params() robot.MoveParams {
	return robot.MoveParams{
		Forwards:       a.bool(),
		MaxSpeed:       a.int(),
		MinSpeed:       a.int(),
		EarlyExitRange: a.float(),
	}
}

func (a *args) pose() robot.Pose {
	return robot.Pose{X: a.float(), Y: a.float(), Theta: a.float()}
}

func (a *args) point() robot.Point {
	return robot.Point{X: a.float(), Y: a.float()}
}

// splitLine returns the id, verb and remaining fields of a line.
func splitLine(line string) (uint64, string, *args, error) {
	fields := strings.Fields(line)
	if len(fields) < 2 {
		return 0, "", nil, fmt.Errorf("short line %q", line)
	}
	id, err := strconv.ParseUint(fields[0], 10, 64)
	if err != nil {
		return 0, "", nil, fmt.Errorf("bad id in %q", line)
	}
	return id, fields[1], &args{fields: fields[2:]}, nil
}
