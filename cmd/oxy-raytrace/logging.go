package main

import (
	"github.com/Carmen-Shannon/oxy-raytrace/engine/logger"
	"github.com/urfave/cli"
)

var log = logger.New("oxy-raytrace")

func setupLogging(ctx *cli.Context) error {
	level, err := logger.ParseLevel(ctx.GlobalString("log-level"))
	if err != nil {
		return err
	}
	logger.SetLevel(level)
	return nil
}
