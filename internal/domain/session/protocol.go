package session

import (
	"github.com/GriffinCanCode/bastion/internal/engine"
	"github.com/bytedance/sonic"
)

// Inbound command types.
const (
	CmdUpdateConfig      = "update_config"
	CmdCreateTab         = "create_tab"
	CmdActivateTab       = "activate_tab"
	CmdNavigate          = "navigate"
	CmdStopLoading       = "stop_loading"
	CmdResize            = "resize"
	CmdNavigationControl = "navigation_control"
	CmdCloseTab          = "close_tab"
	CmdMouseEvent        = "mouse_event"
	CmdKeyboardEvent     = "keyboard_event"
	CmdGetContextInfo    = "get_context_info"
	CmdDownloadURL       = "download_url"
	CmdFileProvided      = "file_provided"
	CmdCancelFileRequest = "cancel_file_request"
	CmdManualFileRequest = "manual_file_request"
	CmdSaveVTKey         = "save_vt_key"
)

var commandTypes = map[string]struct{}{
	CmdUpdateConfig: {}, CmdCreateTab: {}, CmdActivateTab: {}, CmdNavigate: {},
	CmdStopLoading: {}, CmdResize: {}, CmdNavigationControl: {}, CmdCloseTab: {},
	CmdMouseEvent: {}, CmdKeyboardEvent: {}, CmdGetContextInfo: {}, CmdDownloadURL: {},
	CmdFileProvided: {}, CmdCancelFileRequest: {}, CmdManualFileRequest: {}, CmdSaveVTKey: {},
}

// KnownCommand reports whether typ names an inbound command.
func KnownCommand(typ string) bool {
	_, ok := commandTypes[typ]
	return ok
}

// Outbound event types.
const (
	EvtSessionReady      = "session_ready"
	EvtTabCreated        = "tab_created"
	EvtTitleChanged      = "title_changed"
	EvtURLChanged        = "url_changed"
	EvtLoadingStart      = "loading_start"
	EvtLoadingStop       = "loading_stop"
	EvtFrame             = "frame"
	EvtContextMenuInfo   = "context_menu_info"
	EvtFileRequested     = "file_requested"
	EvtDownloadFinished  = "download_finished"
	EvtDownloadFailed    = "download_failed"
	EvtNavigationBlocked = "navigation_blocked"
	EvtVTScanning        = "vt_scanning"
	EvtVTWarning         = "vt_warning"
	EvtVTInfo            = "vt_info"
	EvtVTReport          = "vt_report"
)

// Command is an inbound control message. Fields are shared between command
// types; each type reads only the ones it defines.
type Command struct {
	Type      string          `json:"type"`
	ID        engine.TargetID `json:"id,omitempty"`
	URL       string          `json:"url,omitempty"`
	Config    *ConfigUpdate   `json:"config,omitempty"`
	Width     int             `json:"width,omitempty"`
	Height    int             `json:"height,omitempty"`
	Action    string          `json:"action,omitempty"`
	Event     string          `json:"event,omitempty"`
	X         float64         `json:"x,omitempty"`
	Y         float64         `json:"y,omitempty"`
	Button    string          `json:"button,omitempty"`
	DeltaY    float64         `json:"deltaY,omitempty"`
	Key       string          `json:"key,omitempty"`
	Filenames []string        `json:"filenames,omitempty"`
}

// DecodeCommand parses one inbound message.
func DecodeCommand(data []byte) (Command, error) {
	var cmd Command
	err := sonic.Unmarshal(data, &cmd)
	return cmd, err
}

// Message is an outbound event.
type Message interface {
	MessageType() string
}

type header struct {
	Type string `json:"type"`
}

func (h header) MessageType() string { return h.Type }

// Encode serializes an outbound event.
func Encode(m Message) ([]byte, error) {
	return sonic.Marshal(m)
}

type SessionReady struct {
	header
	SessionID string `json:"sessionId"`
}

// TabEvent carries only a tab id: tab_created, loading_start, loading_stop.
type TabEvent struct {
	header
	ID engine.TargetID `json:"id"`
}

type TitleChanged struct {
	header
	ID    engine.TargetID `json:"id"`
	Title string          `json:"title"`
}

type URLChanged struct {
	header
	ID  engine.TargetID `json:"id"`
	URL string          `json:"url"`
}

type FrameEvent struct {
	header
	Data     []byte               `json:"data"`
	Metadata engine.FrameMetadata `json:"metadata"`
}

type ContextMenuInfo struct {
	header
	X    float64            `json:"x"`
	Y    float64            `json:"y"`
	Info engine.ContextInfo `json:"info"`
}

type FileRequested struct {
	header
	ID       engine.TargetID `json:"id"`
	Multiple bool            `json:"multiple"`
}

type DownloadFinished struct {
	header
	Filename string `json:"filename"`
}

type DownloadFailed struct {
	header
	Error string `json:"error"`
}

type NavigationBlocked struct {
	header
	ID     engine.TargetID `json:"id"`
	URL    string          `json:"url"`
	Reason string          `json:"reason"`
}

// ThreatNotice covers vt_scanning, vt_warning and vt_info.
type ThreatNotice struct {
	header
	URL       string `json:"url"`
	ReportURL string `json:"reportUrl,omitempty"`
}

type ThreatReport struct {
	header
	ReportURL string `json:"reportUrl"`
	Item      string `json:"item"`
}

func sessionReady(id string) SessionReady {
	return SessionReady{header{EvtSessionReady}, id}
}

func tabEvent(typ string, id engine.TargetID) TabEvent {
	return TabEvent{header{typ}, id}
}

func titleChanged(id engine.TargetID, title string) TitleChanged {
	return TitleChanged{header{EvtTitleChanged}, id, title}
}

func urlChanged(id engine.TargetID, url string) URLChanged {
	return URLChanged{header{EvtURLChanged}, id, url}
}

// NewFrame wraps an engine frame for the wire.
func NewFrame(f engine.Frame) FrameEvent {
	return FrameEvent{header{EvtFrame}, f.Data, f.Metadata}
}

func contextMenuInfo(x, y float64, info engine.ContextInfo) ContextMenuInfo {
	return ContextMenuInfo{header{EvtContextMenuInfo}, x, y, info}
}

func fileRequested(id engine.TargetID, multiple bool) FileRequested {
	return FileRequested{header{EvtFileRequested}, id, multiple}
}

func downloadFinished(name string) DownloadFinished {
	return DownloadFinished{header{EvtDownloadFinished}, name}
}

func downloadFailed(err error) DownloadFailed {
	return DownloadFailed{header{EvtDownloadFailed}, err.Error()}
}

func navigationBlocked(id engine.TargetID, url, reason string) NavigationBlocked {
	return NavigationBlocked{header{EvtNavigationBlocked}, id, url, reason}
}

func threatNotice(typ, url, report string) ThreatNotice {
	return ThreatNotice{header{typ}, url, report}
}

func threatReport(report, item string) ThreatReport {
	return ThreatReport{header{EvtVTReport}, report, item}
}
