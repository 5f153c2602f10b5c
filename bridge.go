// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package fiber

import "encoding/json"

// MessageSink is the single outbound channel to the host. Delivery
// order is FIFO from the runtime; the transport behind it is the
// host's concern.
type MessageSink interface {
	PostMessage(msg Message)
}

// SinkFunc adapts a function to a MessageSink.
type SinkFunc func(msg Message)

func (f SinkFunc) PostMessage(msg Message) { f(msg) }

// Message is the marker for host-bridge envelopes.
type Message interface {
	envelope()
}

// StatusMessage reports runtime lifecycle transitions.
type StatusMessage struct {
	Type      string `json:"type"` // "status"
	RuntimeID string `json:"runtimeid"`
	State     string `json:"state"` // "running" | "killed"
}

// SerialMessage carries buffered program output.
type SerialMessage struct {
	Type string `json:"type"` // "serial"
	Data string `json:"data"`
	ID   string `json:"id"`
	Sim  bool   `json:"sim"`
}

// StackFrameInfo describes one activation in a breakpoint message. The
// variables reference resolves locals against the paused heap snapshot
// via a variables request.
type StackFrameInfo struct {
	BreakpointID       int `json:"breakpointId"`
	Depth              int `json:"depth"`
	VariablesReference int `json:"variablesReference"`
}

// BreakpointMessage is posted when a fiber parks at a breakpoint, and,
// decorated with the exception fields, when an uncaught error surfaces.
type BreakpointMessage struct {
	Type             string           `json:"type"`    // "debugger"
	Subtype          string           `json:"subtype"` // "breakpoint"
	BreakpointID     int              `json:"breakpointId"`
	Globals          map[string]any   `json:"globals,omitempty"`
	Stackframes      []StackFrameInfo `json:"stackframes"`
	ExceptionMessage string           `json:"exceptionMessage,omitempty"`
	ExceptionStack   string           `json:"exceptionStack,omitempty"`
}

// TraceMessage is posted when a fiber crosses a traced position in the
// main source file.
type TraceMessage struct {
	Type         string `json:"type"`    // "debugger"
	Subtype      string `json:"subtype"` // "trace"
	BreakpointID int    `json:"breakpointId"`
}

// VariablesMessage answers a variables request against the paused heap
// snapshot, echoing the request sequence number.
type VariablesMessage struct {
	Type      string         `json:"type"`    // "debugger"
	Subtype   string         `json:"subtype"` // "variables"
	ReqSeq    int            `json:"req_seq"`
	Variables map[string]any `json:"variables"`
}

// RunRequest asks the runtime to load and run a program blob.
type RunRequest struct {
	Type             string `json:"type"` // "run"
	ID               string `json:"id"`
	Code             string `json:"code"`
	RefCountingDebug bool   `json:"refCountingDebug,omitempty"`
}

// DebuggerRequest is an inbound debugger command, distinguished by
// Subtype: config, traceConfig, pause, resume, stepover, stepinto,
// stepout, variables.
type DebuggerRequest struct {
	Type               string `json:"type"` // "debugger"
	Subtype            string `json:"subtype"`
	SetBreakpoints     []int  `json:"setBreakpoints,omitempty"`
	Interval           int    `json:"interval,omitempty"`
	VariablesReference int    `json:"variablesReference,omitempty"`
	Seq                int    `json:"seq,omitempty"`
}

// CustomMessage is an opaque host extension message dispatched to the
// runtime's custom-message hook.
type CustomMessage struct {
	Type    string          `json:"type"` // "custom"
	Channel string          `json:"channel"`
	Data    json.RawMessage `json:"data,omitempty"`
}

func (*StatusMessage) envelope()     {}
func (*SerialMessage) envelope()     {}
func (*BreakpointMessage) envelope() {}
func (*TraceMessage) envelope()      {}
func (*VariablesMessage) envelope()  {}
func (*RunRequest) envelope()        {}
func (*DebuggerRequest) envelope()   {}
func (*CustomMessage) envelope()     {}

// HandleMessage dispatches an inbound host message onto the scheduler
// goroutine. Unknown envelopes are ignored.
func (rt *Runtime) HandleMessage(msg Message) {
	switch m := msg.(type) {
	case *RunRequest:
		rt.sched.post(func() { rt.handleRunMessage(m) })
	case *DebuggerRequest:
		rt.sched.post(func() { rt.handleDebuggerMsg(m) })
	case *CustomMessage:
		rt.sched.post(func() {
			if h := rt.handleCustomMessage; h != nil {
				h(m)
			}
		})
	}
}

// postMessage sends one envelope to the host sink.
func (rt *Runtime) postMessage(msg Message) {
	if rt.sink != nil {
		rt.sink.PostMessage(msg)
	}
}
