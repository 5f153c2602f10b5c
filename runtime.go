// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package fiber

import (
	"strings"
	"time"

	"code.hybscloud.com/atomix"
	"code.hybscloud.com/kont"
	"github.com/charmbracelet/log"
)

// Board is the peripheral model bound to a runtime. The runtime only
// needs the display-flush entry point; everything else about boards is
// the host's concern.
type Board interface {
	UpdateView()
}

// Program is what the runtime consumes from the code-loading step: the
// entry label, the compiled refcounting flag, the breakpoint table size
// and the main source file for trace filtering.
type Program struct {
	EntryPoint     LabelFn
	RefCounting    bool
	NumBreakpoints int
	MainFile       string
}

// Loader evaluates a program blob into its ABI surface.
type Loader interface {
	Load(code string) (*Program, error)
}

// LoaderFunc adapts a function to a Loader.
type LoaderFunc func(code string) (*Program, error)

func (f LoaderFunc) Load(code string) (*Program, error) { return f(code) }

// Runtime executes one program. All fields below sched are owned by the
// scheduler goroutine; the dead flag and the display counter are the
// only state touched from outside it.
type Runtime struct {
	id     string
	serial Serial
	sink   MessageSink
	board  Board
	loader Loader
	log    *log.Logger
	sched  *sched

	dead           atomix.Uint32
	displayUpdates atomix.Uint32

	running   bool
	startTime time.Time
	lastYield time.Time

	currFrame  *Frame
	currResume ResumeFn
	loopLock   *loopLock
	waitList   []func()

	refCounting      bool
	refCountingDebug bool
	liveObjects      map[Serial]*RefObject

	program *Program

	errorHandler        func(*FiberError)
	postError           func(*FiberError)
	handleCustomMessage func(*CustomMessage)

	serialBuf strings.Builder

	dbg debuggerState
}

// currentRuntime is the module-level current-runtime binding. Every
// re-entry into the interpreter (loop, resume, yield continuation,
// fiber spawn, debugger resume) re-binds it, so outside code calling
// the package-level [GetResume] always targets the runtime whose loop
// is on the stack. Only meaningful on the scheduler goroutine.
var currentRuntime *Runtime

// Current returns the runtime bound by the most recent loop re-entry.
func Current() *Runtime {
	return currentRuntime
}

func (rt *Runtime) bind() {
	currentRuntime = rt
}

// NewRuntime creates a runtime posting to sink. The scheduler is not
// started; call Start before delivering messages or running programs.
func NewRuntime(id string, sink MessageSink) *Runtime {
	return &Runtime{
		id:          id,
		serial:      nextSerial(),
		sink:        sink,
		log:         log.Default().WithPrefix("fiber"),
		sched:       newSched(),
		liveObjects: make(map[Serial]*RefObject),
	}
}

// Start launches the scheduler goroutine.
func (rt *Runtime) Start() {
	rt.sched.start()
}

// Serial returns the serial number assigned to this runtime.
func (rt *Runtime) Serial() Serial {
	return rt.serial
}

// BindBoard attaches the board peripheral model. Required before a
// program can run.
func (rt *Runtime) BindBoard(b Board) {
	rt.board = b
}

// SetLoader installs the code-loading collaborator used by run messages.
func (rt *Runtime) SetLoader(l Loader) {
	rt.loader = l
}

// SetErrorHandler installs the uncaught-error hook. When present it
// replaces the breakpoint-shaped exception message at the loop boundary.
func (rt *Runtime) SetErrorHandler(h func(*FiberError)) {
	rt.errorHandler = h
}

// SetPostError installs a hook invoked after an uncaught error has been
// posted to the host.
func (rt *Runtime) SetPostError(h func(*FiberError)) {
	rt.postError = h
}

// SetCustomMessageHandler installs the hook for custom host messages.
func (rt *Runtime) SetCustomMessageHandler(h func(*CustomMessage)) {
	rt.handleCustomMessage = h
}

// SetLogger replaces the runtime's diagnostic logger.
func (rt *Runtime) SetLogger(l *log.Logger) {
	rt.log = l
}

// Dead reports whether the runtime has been killed.
func (rt *Runtime) Dead() bool {
	return rt.dead.Load() != 0
}

// Kill marks the runtime dead and posts the killed status. Pending
// resumes, yields and debugger commands become silent no-ops; the
// scheduler stops once the transition has been delivered. Idempotent.
func (rt *Runtime) Kill() {
	if !rt.dead.CompareAndSwap(0, 1) {
		return
	}
	rt.sched.post(func() {
		rt.running = false
		rt.postMessage(&StatusMessage{Type: "status", RuntimeID: rt.id, State: "killed"})
		rt.log.Debug("runtime killed", "id", rt.id)
		rt.sched.stop()
	})
}

// Post schedules f on the runtime's scheduler goroutine (the host
// event-loop tick).
func (rt *Runtime) Post(f func()) {
	rt.sched.post(f)
}

// PostDelayed schedules f on the scheduler goroutine after d. This is
// the timer facility native extensions build sleeps on.
func (rt *Runtime) PostDelayed(d time.Duration, f func()) {
	rt.sched.postDelayed(d, f)
}

// QueueDisplayUpdate coalesces a display refresh; the loop flushes the
// counter to the board after every label-function dispatch.
func (rt *Runtime) QueueDisplayUpdate() {
	rt.displayUpdates.Add(1)
}

// RunningTime returns the time elapsed since the program started.
func (rt *Runtime) RunningTime() time.Duration {
	return time.Since(rt.startTime)
}

// RunningTimeUs returns microseconds since the program started,
// truncated to 32 bits.
func (rt *Runtime) RunningTimeUs() uint32 {
	return uint32(time.Since(rt.startTime).Microseconds())
}

// InitProgram binds a loaded program's ABI surface: refcounting flag
// and breakpoint table. Runs on the scheduler goroutine.
func (rt *Runtime) InitProgram(p *Program) {
	rt.program = p
	rt.refCounting = p.RefCounting
	rt.setupDebugger(p.NumBreakpoints)
}

// handleRunMessage loads the blob through the loader and starts the
// program fiber.
func (rt *Runtime) handleRunMessage(m *RunRequest) {
	if m.ID != "" {
		rt.id = m.ID
	}
	rt.refCountingDebug = m.RefCountingDebug
	if rt.loader == nil {
		rt.log.Error("run message without a loader", "id", rt.id)
		return
	}
	p, err := rt.loader.Load(m.Code)
	if err != nil {
		rt.log.Error("program load failed", "id", rt.id, "err", err)
		return
	}
	rt.InitProgram(p)
	rt.startProgram(p, nil)
}

// RunProgram initializes p and runs its entry point, delivering the
// completion as Right(final value) or Left(uncaught error). May be
// called from any goroutine.
func (rt *Runtime) RunProgram(p *Program, cb func(kont.Either[*FiberError, any])) {
	rt.sched.post(func() {
		rt.InitProgram(p)
		rt.startProgram(p, cb)
	})
}

// startProgram enters the interpreter on the entry label. Scheduler
// goroutine only.
func (rt *Runtime) startProgram(p *Program, cb func(kont.Either[*FiberError, any])) {
	if cb != nil {
		rt.errorHandler = func(e *FiberError) {
			cb(kont.Left[*FiberError, any](e))
		}
	}
	rt.TopCall(p.EntryPoint, func(v any) {
		rt.FlushSerial()
		if cb != nil {
			cb(kont.Right[*FiberError](v))
		}
	})
}

// TopCall installs the sentinel and entry frames for fn and drives the
// interpreter until the fiber parks or completes. cb observes the final
// return value. Scheduler goroutine only.
func (rt *Runtime) TopCall(fn LabelFn, cb func(v any)) {
	assert(rt.board != nil, "no board bound")
	assert(!rt.running, "runtime already running")
	rt.running = true
	rt.startTime = time.Now()
	rt.lastYield = rt.startTime
	rt.postMessage(&StatusMessage{Type: "status", RuntimeID: rt.id, State: "running"})
	rt.log.Debug("program started", "id", rt.id)

	top := rt.setupTop(cb)
	s := &Frame{Parent: top, Fn: fn}
	rt.enterLoop(rt.ActionCall(s, nil))
}
