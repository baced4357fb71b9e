package main

import (
	"context"
	"fmt"

	"go.starlark.net/starlark"
	"go.starlark.net/starlarkstruct"

	"github.com/waycrest/waycrest/pkg/geometry"
	"github.com/waycrest/waycrest/pkg/protocol"
)

// predeclared builds the protocol builtins available to config scripts.
func (rt *runtime) predeclared() starlark.StringDict {
	return starlark.StringDict{
		"struct":            starlarkstruct.Default,
		"add_tags":          starlark.NewBuiltin("add_tags", rt.builtinAddTags),
		"add_window_rule":   starlark.NewBuiltin("add_window_rule", rt.builtinAddWindowRule),
		"toggle_tag_active": starlark.NewBuiltin("toggle_tag_active", rt.builtinToggleTagActive),
		"set_tag_layout":    starlark.NewBuiltin("set_tag_layout", rt.builtinSetTagLayout),
		"toggle_floating":   rt.windowMsgBuiltin("toggle_floating", protocol.TypeToggleFloating),
		"toggle_fullscreen": rt.windowMsgBuiltin("toggle_fullscreen", protocol.TypeToggleFullscreen),
		"toggle_maximized":  rt.windowMsgBuiltin("toggle_maximized", protocol.TypeToggleMaximized),
		"close_window":      rt.windowMsgBuiltin("close_window", protocol.TypeCloseWindow),
		"move_window_to_tag": starlark.NewBuiltin("move_window_to_tag", rt.builtinMoveWindowToTag),
		"set_window_size":   starlark.NewBuiltin("set_window_size", rt.builtinSetWindowSize),
		"get_windows":       starlark.NewBuiltin("get_windows", rt.builtinGetWindows),
		"get_window_props":  starlark.NewBuiltin("get_window_props", rt.builtinGetWindowProps),
		"get_tags":          starlark.NewBuiltin("get_tags", rt.builtinGetTags),
		"quit":              starlark.NewBuiltin("quit", rt.builtinQuit),
	}
}

// add_tags(output, names)
func (rt *runtime) builtinAddTags(_ *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	var output string
	var names *starlark.List
	if err := starlark.UnpackArgs(b.Name(), args, kwargs, "output", &output, "names", &names); err != nil {
		return nil, err
	}
	var tagNames []string
	for i := 0; i < names.Len(); i++ {
		s, ok := starlark.AsString(names.Index(i))
		if !ok {
			return nil, fmt.Errorf("%s: names[%d] is not a string", b.Name(), i)
		}
		tagNames = append(tagNames, s)
	}
	return starlark.None, rt.client.AddTags(output, tagNames...)
}

// add_window_rule(classes=[], titles=[], floating=None, fullscreen=None,
// maximized=None, tag_ids=[], width=None, height=None, focused=None)
func (rt *runtime) builtinAddWindowRule(_ *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	var (
		classes, titles, tagIDs *starlark.List
		floating, fullscreen    starlark.Value
		maximized, focused      starlark.Value
		width, height           starlark.Value
	)
	if err := starlark.UnpackArgs(b.Name(), args, kwargs,
		"classes?", &classes, "titles?", &titles, "tag_ids?", &tagIDs,
		"floating?", &floating, "fullscreen?", &fullscreen,
		"maximized?", &maximized, "focused?", &focused,
		"width?", &width, "height?", &height,
	); err != nil {
		return nil, err
	}

	msg := protocol.AddWindowRuleMsg{}
	var err error
	if msg.Condition.Classes, err = stringList(b.Name(), "classes", classes); err != nil {
		return nil, err
	}
	if msg.Condition.Titles, err = stringList(b.Name(), "titles", titles); err != nil {
		return nil, err
	}
	if msg.Actions.TagIDs, err = uint32List(b.Name(), "tag_ids", tagIDs); err != nil {
		return nil, err
	}
	if msg.Actions.Floating, err = optBool(b.Name(), "floating", floating); err != nil {
		return nil, err
	}
	if msg.Actions.Fullscreen, err = optBool(b.Name(), "fullscreen", fullscreen); err != nil {
		return nil, err
	}
	if msg.Actions.Maximized, err = optBool(b.Name(), "maximized", maximized); err != nil {
		return nil, err
	}
	if msg.Actions.Focused, err = optBool(b.Name(), "focused", focused); err != nil {
		return nil, err
	}

	w, err := optInt32(b.Name(), "width", width)
	if err != nil {
		return nil, err
	}
	h, err := optInt32(b.Name(), "height", height)
	if err != nil {
		return nil, err
	}
	if w != nil || h != nil {
		size := geometry.Size{W: 1, H: 1}
		if w != nil {
			size.W = *w
		}
		if h != nil {
			size.H = *h
		}
		msg.Actions.Size = &size
	}

	return starlark.None, rt.client.AddWindowRule(msg)
}

// toggle_tag_active(tag_id)
func (rt *runtime) builtinToggleTagActive(_ *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	var tagID int
	if err := starlark.UnpackArgs(b.Name(), args, kwargs, "tag_id", &tagID); err != nil {
		return nil, err
	}
	return starlark.None, rt.client.Send(protocol.TypeToggleTagActive, protocol.ToggleTagActiveMsg{TagID: uint32(tagID)})
}

// set_tag_layout(tag_id, layout)
func (rt *runtime) builtinSetTagLayout(_ *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	var tagID int
	var layout string
	if err := starlark.UnpackArgs(b.Name(), args, kwargs, "tag_id", &tagID, "layout", &layout); err != nil {
		return nil, err
	}
	return starlark.None, rt.client.Send(protocol.TypeSetTagLayout, protocol.SetTagLayoutMsg{TagID: uint32(tagID), Layout: layout})
}

// move_window_to_tag(window_id, tag_id)
func (rt *runtime) builtinMoveWindowToTag(_ *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	var windowID, tagID int
	if err := starlark.UnpackArgs(b.Name(), args, kwargs, "window_id", &windowID, "tag_id", &tagID); err != nil {
		return nil, err
	}
	return starlark.None, rt.client.Send(protocol.TypeMoveWindowToTag, protocol.MoveWindowToTagMsg{
		WindowID: uint32(windowID), TagID: uint32(tagID),
	})
}

// set_window_size(window_id, width=None, height=None)
func (rt *runtime) builtinSetWindowSize(_ *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	var windowID int
	var width, height starlark.Value
	if err := starlark.UnpackArgs(b.Name(), args, kwargs, "window_id", &windowID, "width?", &width, "height?", &height); err != nil {
		return nil, err
	}
	w, err := optInt32(b.Name(), "width", width)
	if err != nil {
		return nil, err
	}
	h, err := optInt32(b.Name(), "height", height)
	if err != nil {
		return nil, err
	}
	return starlark.None, rt.client.Send(protocol.TypeSetWindowSize, protocol.SetWindowSizeMsg{
		WindowID: uint32(windowID), Width: w, Height: h,
	})
}

// get_windows() -> [int]
func (rt *runtime) builtinGetWindows(_ *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	if err := starlark.UnpackArgs(b.Name(), args, kwargs); err != nil {
		return nil, err
	}
	ids, err := rt.client.GetWindows(context.Background())
	if err != nil {
		return nil, err
	}
	out := make([]starlark.Value, len(ids))
	for i, id := range ids {
		out[i] = starlark.MakeInt(int(id))
	}
	return starlark.NewList(out), nil
}

// get_window_props(window_id) -> struct or None when the window is gone
func (rt *runtime) builtinGetWindowProps(_ *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	var windowID int
	if err := starlark.UnpackArgs(b.Name(), args, kwargs, "window_id", &windowID); err != nil {
		return nil, err
	}
	props, err := rt.client.GetWindowProps(context.Background(), uint32(windowID))
	if err != nil {
		return nil, err
	}
	if props.Class == nil {
		return starlark.None, nil
	}

	fields := starlark.StringDict{
		"class":    starlark.String(*props.Class),
		"title":    starlark.String(deref(props.Title)),
		"floating": starlark.Bool(props.Floating != nil && *props.Floating),
		"focused":  starlark.Bool(props.Focused != nil && *props.Focused),
	}
	if props.Size != nil {
		fields["width"] = starlark.MakeInt(int(props.Size.W))
		fields["height"] = starlark.MakeInt(int(props.Size.H))
	}
	if props.FullscreenOrMaximized != nil {
		fields["fullscreen_or_maximized"] = starlark.String(string(*props.FullscreenOrMaximized))
	}
	tags := make([]starlark.Value, len(props.TagIDs))
	for i, id := range props.TagIDs {
		tags[i] = starlark.MakeInt(int(id))
	}
	fields["tag_ids"] = starlark.NewList(tags)
	return starlarkstruct.FromStringDict(starlarkstruct.Default, fields), nil
}

// get_tags() -> [int]
func (rt *runtime) builtinGetTags(_ *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	if err := starlark.UnpackArgs(b.Name(), args, kwargs); err != nil {
		return nil, err
	}
	ids, err := rt.client.GetTags(context.Background())
	if err != nil {
		return nil, err
	}
	out := make([]starlark.Value, len(ids))
	for i, id := range ids {
		out[i] = starlark.MakeInt(int(id))
	}
	return starlark.NewList(out), nil
}

// quit()
func (rt *runtime) builtinQuit(_ *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	if err := starlark.UnpackArgs(b.Name(), args, kwargs); err != nil {
		return nil, err
	}
	return starlark.None, rt.client.Send(protocol.TypeQuit, protocol.QuitMsg{})
}

// windowMsgBuiltin covers the messages whose only argument is window_id.
func (rt *runtime) windowMsgBuiltin(name, msgType string) *starlark.Builtin {
	return starlark.NewBuiltin(name, func(_ *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
		var windowID int
		if err := starlark.UnpackArgs(b.Name(), args, kwargs, "window_id", &windowID); err != nil {
			return nil, err
		}
		var body any
		switch msgType {
		case protocol.TypeToggleFloating:
			body = protocol.ToggleFloatingMsg{WindowID: uint32(windowID)}
		case protocol.TypeToggleFullscreen:
			body = protocol.ToggleFullscreenMsg{WindowID: uint32(windowID)}
		case protocol.TypeToggleMaximized:
			body = protocol.ToggleMaximizedMsg{WindowID: uint32(windowID)}
		case protocol.TypeCloseWindow:
			body = protocol.CloseWindowMsg{WindowID: uint32(windowID)}
		}
		return starlark.None, rt.client.Send(msgType, body)
	})
}

// Starlark argument helpers.

func stringList(builtin, arg string, list *starlark.List) ([]string, error) {
	if list == nil {
		return nil, nil
	}
	out := make([]string, 0, list.Len())
	for i := 0; i < list.Len(); i++ {
		s, ok := starlark.AsString(list.Index(i))
		if !ok {
			return nil, fmt.Errorf("%s: %s[%d] is not a string", builtin, arg, i)
		}
		out = append(out, s)
	}
	return out, nil
}

func uint32List(builtin, arg string, list *starlark.List) ([]uint32, error) {
	if list == nil {
		return nil, nil
	}
	out := make([]uint32, 0, list.Len())
	for i := 0; i < list.Len(); i++ {
		n, err := starlark.AsInt32(list.Index(i))
		if err != nil {
			return nil, fmt.Errorf("%s: %s[%d]: %v", builtin, arg, i, err)
		}
		out = append(out, uint32(n))
	}
	return out, nil
}

func optBool(builtin, arg string, v starlark.Value) (*bool, error) {
	if v == nil || v == starlark.None {
		return nil, nil
	}
	b, ok := v.(starlark.Bool)
	if !ok {
		return nil, fmt.Errorf("%s: %s must be a bool", builtin, arg)
	}
	val := bool(b)
	return &val, nil
}

func optInt32(builtin, arg string, v starlark.Value) (*int32, error) {
	if v == nil || v == starlark.None {
		return nil, nil
	}
	n, err := starlark.AsInt32(v)
	if err != nil {
		return nil, fmt.Errorf("%s: %s: %v", builtin, arg, err)
	}
	val := int32(n)
	return &val, nil
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
