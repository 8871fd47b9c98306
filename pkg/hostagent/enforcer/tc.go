package enforcer

import (
	"context"
	"fmt"
	"os/exec"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
)

var tclog = logrus.WithField("component", "enforcer.TcCaller")

const tcCallTimeout = 5 * time.Second

// TcCaller invokes the tc binary. Every call is bounded by a timeout
// and the subprocess is killed on every exit path.
type TcCaller interface {
	Call(args ...string) (string, error)
}

type execTcCaller struct {
	tcName string
}

func NewTcCaller(tcName string) TcCaller {
	if tcName == "" {
		tcName = "tc"
	}
	return &execTcCaller{tcName: tcName}
}

func (c *execTcCaller) Call(args ...string) (string, error) {
	ctx, cancel := context.WithTimeout(context.Background(), tcCallTimeout)
	defer cancel()
	out, err := exec.CommandContext(ctx, c.tcName, args...).CombinedOutput()
	if err != nil {
		return "", fmt.Errorf("tc %s: %w (output: %s)",
			strings.Join(args, " "), err, strings.TrimSpace(string(out)))
	}
	tclog.WithField("args", args).Debug("tc call succeeded")
	return string(out), nil
}
