package globals

import "github.com/hashicorp/go-hclog"

var AppLogger = hclog.New(&hclog.LoggerOptions{
	Name:  "galechat",
	Level: hclog.LevelFromString("INFO"),
})
