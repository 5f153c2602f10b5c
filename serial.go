// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package fiber

import (
	"strings"

	"code.hybscloud.com/atomix"
)

// Serial is a monotonically increasing identifier. Runtimes and heap
// objects draw from independent counters.
type Serial = uint32

// counter is the global monotonic counter for runtime serials.
var counter atomix.Uint32

// nextSerial returns the next monotonically increasing serial.
func nextSerial() Serial {
	return counter.Add(1)
}

// serialFlushLen is the output buffering threshold: the buffer is
// flushed to the host when it holds a newline or exceeds this length.
const serialFlushLen = 16

// WriteSerial appends program output to the serial buffer, flushing on
// newline or once the buffer exceeds serialFlushLen characters.
func (rt *Runtime) WriteSerial(data string) {
	rt.serialBuf.WriteString(data)
	if strings.ContainsRune(data, '\n') || rt.serialBuf.Len() > serialFlushLen {
		rt.FlushSerial()
	}
}

// FlushSerial posts any buffered serial output immediately. Called by
// the run teardown so trailing output without a newline still reaches
// the host.
func (rt *Runtime) FlushSerial() {
	if rt.serialBuf.Len() == 0 {
		return
	}
	data := rt.serialBuf.String()
	rt.serialBuf.Reset()
	rt.postMessage(&SerialMessage{
		Type: "serial",
		Data: data,
		ID:   rt.id,
		Sim:  true,
	})
}
