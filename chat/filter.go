package chat

import (
	"github.com/antonmedv/expr"
	"github.com/antonmedv/expr/vm"

	"github.com/galechat/galechat/globals"
)

// FilterEnv is the environment a channel's broadcast filter expression is
// evaluated in, once per (sender, listener) pair. Once this struct is fixed
// it should not be changed, otherwise filters in persisted channel records
// may not compile any more.
type FilterEnv struct {
	Channel  string
	Sender   string
	Listener string
	Distance float64
	Spatial  bool
}

// compileFilter compiles a broadcast filter expression. An empty expression
// compiles to nil, meaning every listener passes.
func compileFilter(source string) (*vm.Program, error) {
	if source == "" {
		return nil, nil
	}
	return expr.Compile(source, expr.Env(FilterEnv{}), expr.AsBool())
}

// runFilter evaluates a compiled filter for one listener. Evaluation errors
// fail open: the listener is delivered to, radius and access control are the
// authoritative gates.
func runFilter(prog *vm.Program, env FilterEnv) bool {
	if prog == nil {
		return true
	}
	res, err := expr.Run(prog, env)
	if err != nil {
		globals.AppLogger.Error("could not evaluate broadcast filter", "channel", env.Channel, "error", err)
		return true
	}
	pass, ok := res.(bool)
	if !ok {
		return true
	}
	return pass
}
