package main

import (
	"context"
	"fmt"
	"os"

	"go.starlark.net/starlark"
	"go.starlark.net/starlarkstruct"

	"github.com/waycrest/waycrest/pkg/client"
	"github.com/waycrest/waycrest/pkg/protocol"
	"github.com/waycrest/waycrest/pkg/telemetry"
)

// runtime binds a Starlark interpreter to the protocol client. The
// script runs once at startup; globals named on_output_connect and
// on_config_reload become event handlers afterwards.
type runtime struct {
	client  *client.Client
	logger  *telemetry.Logger
	thread  *starlark.Thread
	globals starlark.StringDict
}

func newRuntime(cl *client.Client, logger *telemetry.Logger) *runtime {
	rt := &runtime{
		client: cl,
		logger: logger.NewComponentLogger("config"),
	}
	rt.thread = &starlark.Thread{
		Name: "waycrest-config",
		Print: func(_ *starlark.Thread, msg string) {
			rt.logger.Info(msg)
		},
	}
	return rt
}

// execScript runs the config script with the protocol builtins
// predeclared.
func (rt *runtime) execScript(path string) error {
	script, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config script: %w", err)
	}

	globals, err := starlark.ExecFile(rt.thread, path, script, rt.predeclared())
	if err != nil {
		return err
	}
	rt.globals = globals
	rt.logger.Infof("config script %s executed", path)
	return nil
}

// serveEvents dispatches compositor events to script handlers until the
// connection closes or the context ends.
func (rt *runtime) serveEvents(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case env, ok := <-rt.client.Events():
			if !ok {
				rt.logger.Info("compositor closed the control connection")
				return nil
			}
			if err := rt.handleEvent(env); err != nil {
				rt.logger.WithError(err).Warnf("event handler for %s failed", env.Type)
			}
		}
	}
}

func (rt *runtime) handleEvent(env *protocol.Envelope) error {
	switch env.Type {
	case protocol.TypeOutputConnect:
		var body protocol.OutputConnectEvent
		if err := protocol.Unmarshal(env.Body, &body); err != nil {
			return err
		}
		return rt.callHandler("on_output_connect", starlarkstruct.FromStringDict(starlarkstruct.Default, starlark.StringDict{
			"output_id": starlark.MakeInt(int(body.OutputID)),
			"name":      starlark.String(body.Name),
			"width":     starlark.MakeInt(int(body.Res.W)),
			"height":    starlark.MakeInt(int(body.Res.H)),
		}))

	case protocol.TypeConfigReload:
		// The compositor is about to replace this process; run the hook
		// and exit cleanly so the exit is not counted as a crash.
		if err := rt.callHandler("on_config_reload"); err != nil {
			rt.logger.WithError(err).Warn("reload hook failed")
		}
		rt.logger.Info("reload announced, exiting")
		os.Exit(0)
		return nil

	default:
		rt.logger.Debugf("ignoring unknown event type %q", env.Type)
		return nil
	}
}

// callHandler invokes a script global if the script defined it.
func (rt *runtime) callHandler(name string, args ...starlark.Value) error {
	fn, ok := rt.globals[name]
	if !ok {
		return nil
	}
	callable, ok := fn.(starlark.Callable)
	if !ok {
		return fmt.Errorf("%s is not callable", name)
	}
	_, err := starlark.Call(rt.thread, callable, starlark.Tuple(args), nil)
	return err
}
