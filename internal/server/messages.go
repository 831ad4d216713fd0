package server

import (
	stderrors "errors"

	"github.com/conneroisu/bundlr/internal/build"
	"github.com/conneroisu/bundlr/internal/errors"
)

// Message types sent over the websocket.
const (
	TypeUpdate = "update"
	TypeErrors = "errors"
)

// UpdateMessage announces a new good build.
type UpdateMessage struct {
	Type             string   `json:"type"`
	BuildID          string   `json:"buildId"`
	ChangedModuleIDs []string `json:"changedModuleIds"`
}

// ErrorsMessage announces a failed build. The previous good build keeps
// being served.
type ErrorsMessage struct {
	Type    string      `json:"type"`
	BuildID string      `json:"buildId,omitempty"`
	Errors  []ErrorInfo `json:"errors"`
}

// ErrorInfo is one build error as shown in the browser.
type ErrorInfo struct {
	Module  string `json:"module,omitempty"`
	Message string `json:"message"`
}

func newUpdateMessage(res *build.Result) UpdateMessage {
	changed := res.Changed
	if changed == nil {
		changed = []string{}
	}
	return UpdateMessage{Type: TypeUpdate, BuildID: res.BuildID, ChangedModuleIDs: changed}
}

// buildErrors lists the module failures of a failed build, then fatal lint
// errors, falling back to err itself.
func buildErrors(res *build.Result, err error) []ErrorInfo {
	var out []ErrorInfo
	if res != nil && res.Report != nil {
		for _, f := range res.Report.Failures() {
			out = append(out, ErrorInfo{Module: f.Module, Message: f.Err.Error()})
		}
		if len(out) == 0 {
			for _, d := range res.Report.Diagnostics() {
				if d.Severity == errors.SeverityError {
					out = append(out, ErrorInfo{Module: d.Module, Message: d.Error()})
				}
			}
		}
	}
	if len(out) == 0 && err != nil {
		info := ErrorInfo{Message: err.Error()}
		var be *errors.BundlrError
		if stderrors.As(err, &be) && be.FilePath != "" {
			info.Module = be.FilePath
		}
		out = append(out, info)
	}
	return out
}

func newErrorsMessage(res *build.Result, err error) ErrorsMessage {
	msg := ErrorsMessage{Type: TypeErrors, Errors: buildErrors(res, err)}
	if res != nil {
		msg.BuildID = res.BuildID
	}
	return msg
}
