// Package autoload initializes the process-wide logger from the LOG_*
// environment on import. Blank-import it from main.
package autoload

import (
	configx "github.com/athena-research/athena-agent/pkg/config"
	logx "github.com/athena-research/athena-agent/pkg/logger"
)

func init() {
	cfg, err := configx.New[logx.Config]("LOG")
	if err != nil {
		logx.Init()
		return
	}
	logx.Init(*cfg)
}
