package protocol

import (
	"fmt"

	"github.com/waycrest/waycrest/pkg/geometry"
)

// Kind distinguishes the four message classes on the wire.
type Kind string

const (
	// KindRequest expects exactly one matching response, in arrival order.
	KindRequest Kind = "request"
	// KindResponse answers a request.
	KindResponse Kind = "response"
	// KindMessage is a one-way state mutation with no reply.
	KindMessage Kind = "message"
	// KindEvent is an unsolicited compositor-originated notification.
	KindEvent Kind = "event"
)

// Validate checks if the kind is valid.
func (k Kind) Validate() error {
	switch k {
	case KindRequest, KindResponse, KindMessage, KindEvent:
		return nil
	default:
		return fmt.Errorf("invalid message kind: %s", k)
	}
}

// Request types.
const (
	TypeGetWindows     = "get_windows"
	TypeGetWindowProps = "get_window_props"
	TypeGetOutputs     = "get_outputs"
	TypeGetOutputProps = "get_output_props"
	TypeGetTags        = "get_tags"
	TypeGetTagProps    = "get_tag_props"
)

// One-way message types.
const (
	TypeToggleTagOnWindow = "toggle_tag_on_window"
	TypeMoveWindowToTag   = "move_window_to_tag"
	TypeToggleFloating    = "toggle_floating"
	TypeToggleFullscreen  = "toggle_fullscreen"
	TypeToggleMaximized   = "toggle_maximized"
	TypeSetWindowSize     = "set_window_size"
	TypeCloseWindow       = "close_window"
	TypeWindowMoveGrab    = "window_move_grab"
	TypeWindowResizeGrab  = "window_resize_grab"
	TypeAddWindowRule     = "add_window_rule"
	TypeAddTags           = "add_tags"
	TypeRemoveTags        = "remove_tags"
	TypeToggleTagActive   = "toggle_tag_active"
	TypeSetTagLayout      = "set_tag_layout"
	TypeQuit              = "quit"
)

// Event types.
const (
	TypeOutputConnect = "output_connect"
	TypeConfigReload  = "config_reload"
)

// TypeUnsupported is the response type sent for a well-framed request the
// compositor does not understand. One-way messages with unknown types are
// silently ignored instead, so a newer config runtime never crashes an
// older compositor.
const TypeUnsupported = "unsupported"

// Envelope is the self-describing payload inside every frame.
type Envelope struct {
	Kind Kind       `cbor:"kind"`
	Type string     `cbor:"type"`
	Body RawMessage `cbor:"body,omitempty"`
}

// Request bodies.

// GetWindowPropsRequest asks for the properties of one window.
type GetWindowPropsRequest struct {
	WindowID uint32 `cbor:"window_id"`
}

// GetOutputPropsRequest asks for the properties of one output.
type GetOutputPropsRequest struct {
	OutputID uint32 `cbor:"output_id"`
}

// GetTagPropsRequest asks for the properties of one tag.
type GetTagPropsRequest struct {
	TagID uint32 `cbor:"tag_id"`
}

// Response bodies.

// FsOrMax is the tri-state fullscreen/maximized indicator.
type FsOrMax string

const (
	FsOrMaxNeither    FsOrMax = "neither"
	FsOrMaxFullscreen FsOrMax = "fullscreen"
	FsOrMaxMaximized  FsOrMax = "maximized"
)

// WindowsResponse lists all known window ids.
type WindowsResponse struct {
	WindowIDs []uint32 `cbor:"window_ids"`
}

// WindowPropsResponse carries per-window properties. Every field is
// optional: a field is absent when the window no longer exists or the
// property is currently undeterminable. Absence is never an error.
type WindowPropsResponse struct {
	Size                  *geometry.Size  `cbor:"size,omitempty"`
	Loc                   *geometry.Point `cbor:"loc,omitempty"`
	Class                 *string         `cbor:"class,omitempty"`
	Title                 *string         `cbor:"title,omitempty"`
	Floating              *bool           `cbor:"floating,omitempty"`
	FullscreenOrMaximized *FsOrMax        `cbor:"fullscreen_or_maximized,omitempty"`
	Focused               *bool           `cbor:"focused,omitempty"`
	TagIDs                []uint32        `cbor:"tag_ids,omitempty"`
}

// OutputsResponse lists all known output ids.
type OutputsResponse struct {
	OutputIDs []uint32 `cbor:"output_ids"`
}

// OutputPropsResponse carries per-output properties, all optional.
type OutputPropsResponse struct {
	Name   *string         `cbor:"name,omitempty"`
	Loc    *geometry.Point `cbor:"loc,omitempty"`
	Res    *geometry.Size  `cbor:"res,omitempty"`
	TagIDs []uint32        `cbor:"tag_ids,omitempty"`
}

// TagsResponse lists all known tag ids.
type TagsResponse struct {
	TagIDs []uint32 `cbor:"tag_ids"`
}

// TagPropsResponse carries per-tag properties, all optional.
type TagPropsResponse struct {
	Name     *string `cbor:"name,omitempty"`
	OutputID *uint32 `cbor:"output_id,omitempty"`
	Active   *bool   `cbor:"active,omitempty"`
	Layout   *string `cbor:"layout,omitempty"`
}

// UnsupportedResponse answers a request whose type the compositor does not
// know.
type UnsupportedResponse struct {
	Requested string `cbor:"requested"`
}

// One-way message bodies.

// ToggleTagOnWindowMsg adds or removes a tag from a window's tag set.
type ToggleTagOnWindowMsg struct {
	WindowID uint32 `cbor:"window_id"`
	TagID    uint32 `cbor:"tag_id"`
}

// MoveWindowToTagMsg replaces a window's tag set with exactly one tag.
type MoveWindowToTagMsg struct {
	WindowID uint32 `cbor:"window_id"`
	TagID    uint32 `cbor:"tag_id"`
}

// ToggleFloatingMsg flips a window between tiled and floating.
type ToggleFloatingMsg struct {
	WindowID uint32 `cbor:"window_id"`
}

// ToggleFullscreenMsg flips the fullscreen overlay.
type ToggleFullscreenMsg struct {
	WindowID uint32 `cbor:"window_id"`
}

// ToggleMaximizedMsg flips the maximized overlay.
type ToggleMaximizedMsg struct {
	WindowID uint32 `cbor:"window_id"`
}

// SetWindowSizeMsg resizes a window. Either dimension may be omitted to
// leave it unchanged. Out-of-range values are clamped by the compositor;
// the message still succeeds.
type SetWindowSizeMsg struct {
	WindowID uint32 `cbor:"window_id"`
	Width    *int32 `cbor:"width,omitempty"`
	Height   *int32 `cbor:"height,omitempty"`
}

// CloseWindowMsg asks the window's client to close.
type CloseWindowMsg struct {
	WindowID uint32 `cbor:"window_id"`
}

// WindowMoveGrabMsg starts an interactive move grab on the given pointer
// button.
type WindowMoveGrabMsg struct {
	Button uint32 `cbor:"button"`
}

// WindowResizeGrabMsg starts an interactive resize grab on the given
// pointer button.
type WindowResizeGrabMsg struct {
	Button uint32 `cbor:"button"`
}

// RuleConditionSpec is the wire form of a window rule condition-set: a
// conjunction of any-of predicate lists. An empty list matches everything
// for that predicate.
type RuleConditionSpec struct {
	Classes []string `cbor:"classes,omitempty"`
	Titles  []string `cbor:"titles,omitempty"`
	TagIDs  []uint32 `cbor:"tag_ids,omitempty"`
}

// RuleActionsSpec is the wire form of a window rule action-set. Only set
// fields are applied.
type RuleActionsSpec struct {
	TagIDs     []uint32        `cbor:"tag_ids,omitempty"`
	Floating   *bool           `cbor:"floating,omitempty"`
	Fullscreen *bool           `cbor:"fullscreen,omitempty"`
	Maximized  *bool           `cbor:"maximized,omitempty"`
	Size       *geometry.Size  `cbor:"size,omitempty"`
	Loc        *geometry.Point `cbor:"loc,omitempty"`
	OutputID   *uint32         `cbor:"output_id,omitempty"`
	Focused    *bool           `cbor:"focused,omitempty"`
}

// AddWindowRuleMsg declares one window rule. Rules accumulate in
// declaration order and are cleared wholesale on config reload.
type AddWindowRuleMsg struct {
	Condition RuleConditionSpec `cbor:"condition"`
	Actions   RuleActionsSpec   `cbor:"actions"`
}

// AddTagsMsg creates tags on an output, by output name.
type AddTagsMsg struct {
	OutputName string   `cbor:"output_name"`
	TagNames   []string `cbor:"tag_names"`
}

// RemoveTagsMsg removes tags by id.
type RemoveTagsMsg struct {
	TagIDs []uint32 `cbor:"tag_ids"`
}

// ToggleTagActiveMsg flips a tag's active flag on its output.
type ToggleTagActiveMsg struct {
	TagID uint32 `cbor:"tag_id"`
}

// SetTagLayoutMsg sets a tag's layout kind (master_stack, even_column,
// even_row, grid).
type SetTagLayoutMsg struct {
	TagID  uint32 `cbor:"tag_id"`
	Layout string `cbor:"layout"`
}

// QuitMsg shuts down the compositor.
type QuitMsg struct{}

// Event bodies.

// OutputConnectEvent announces an output to the configuration process,
// once per output at session start and again when a new output appears.
type OutputConnectEvent struct {
	OutputID uint32         `cbor:"output_id"`
	Name     string         `cbor:"name"`
	Loc      geometry.Point `cbor:"loc"`
	Res      geometry.Size  `cbor:"res"`
}

// ConfigReloadEvent tells the configuration process that a reload was
// requested and the process is about to be replaced.
type ConfigReloadEvent struct{}
