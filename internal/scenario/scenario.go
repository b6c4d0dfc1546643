// Package scenario scripts integration-test fixtures in Lua: a
// scenario file describes a sequence of display/backend events as a
// tiny domain-specific program, which Run replays against an Ops
// sink (typically FixtureBackend's handle driving a session.Driver).
// This keeps multi-step fixtures (resizes, several updates, copies, a
// cursor change, a clipboard event, pauses) readable as data instead
// of as hand-written Go event structs. Connection and disconnection
// are not scriptable.
package scenario

import (
	"fmt"

	lua "github.com/yuin/gopher-lua"
)

// Ops receives each scripted event in source order.
type Ops interface {
	Draw(x, y, w, h int)
	Copy(sx, sy, w, h, dx, dy int)
	Resize(w, h int)
	Cursor(hotspotX, hotspotY, w, h int)
	Clipboard(text string)
	Key(keysym int, pressed bool)
	Pointer(x, y int, mask int)
	SleepMS(ms int)
}

// Run executes a scenario script against ops. The script is plain Lua
// calling the functions registered by register: draw, copy, resize,
// cursor, clipboard, key, pointer, sleep.
func Run(source string, ops Ops) error {
	L := lua.NewState()
	defer L.Close()
	register(L, ops)
	if err := L.DoString(source); err != nil {
		return fmt.Errorf("scenario: %w", err)
	}
	return nil
}

func register(L *lua.LState, ops Ops) {
	L.SetGlobal("draw", L.NewFunction(func(L *lua.LState) int {
		ops.Draw(argInt(L, 1), argInt(L, 2), argInt(L, 3), argInt(L, 4))
		return 0
	}))
	L.SetGlobal("copy", L.NewFunction(func(L *lua.LState) int {
		ops.Copy(argInt(L, 1), argInt(L, 2), argInt(L, 3), argInt(L, 4), argInt(L, 5), argInt(L, 6))
		return 0
	}))
	L.SetGlobal("resize", L.NewFunction(func(L *lua.LState) int {
		ops.Resize(argInt(L, 1), argInt(L, 2))
		return 0
	}))
	L.SetGlobal("cursor", L.NewFunction(func(L *lua.LState) int {
		ops.Cursor(argInt(L, 1), argInt(L, 2), argInt(L, 3), argInt(L, 4))
		return 0
	}))
	L.SetGlobal("clipboard", L.NewFunction(func(L *lua.LState) int {
		ops.Clipboard(L.CheckString(1))
		return 0
	}))
	L.SetGlobal("key", L.NewFunction(func(L *lua.LState) int {
		ops.Key(argInt(L, 1), L.ToBool(2))
		return 0
	}))
	L.SetGlobal("pointer", L.NewFunction(func(L *lua.LState) int {
		ops.Pointer(argInt(L, 1), argInt(L, 2), argInt(L, 3))
		return 0
	}))
	L.SetGlobal("sleep", L.NewFunction(func(L *lua.LState) int {
		ops.SleepMS(argInt(L, 1))
		return 0
	}))
}

func argInt(L *lua.LState, n int) int {
	return int(L.CheckNumber(n))
}
