package main

import (
	"flag"

	"github.com/relayhub/relay/internal/daemon"
	"go.uber.org/fx"
)

func main() {
	configFlag := flag.String("config", "", "config file path (default ~/.relay/config.toml)")
	listenFlag := flag.String("listen", "", "listen address (overrides config)")
	dataFlag := flag.String("data", "", "registry snapshot path (overrides config)")
	flag.Parse()

	app := fx.New(
		daemon.Module(daemon.Params{
			ConfigPath: *configFlag,
			Listen:     *listenFlag,
			DataFile:   *dataFlag,
		}),
	)

	app.Run()
}
