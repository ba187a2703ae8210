/*
 * vshell: an interactive command shell
 * Copyright 2019 Daniel Selifonov
 *
 * This program is free software: you can redistribute it and/or modify
 * it under the terms of the GNU General Public License as published by
 * the Free Software Foundation, either version 3 of the License, or
 * (at your option) any later version.
 *
 * This program is distributed in the hope that it will be useful,
 * but WITHOUT ANY WARRANTY; without even the implied warranty of
 * MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
 * GNU General Public License for more details.
 *
 * You should have received a copy of the GNU General Public License
 * along with this program.  If not, see <http://www.gnu.org/licenses/>.
 */
package pump

import (
	"io"
	"runtime"
	"sync"
)

// AsyncSink is an io.WriteCloser wrapping another io.Writer; writes to it
// (within available buffer capacity) return immediately even if the
// underlying writer blocks, which keeps a slow SSH channel from stalling the
// pty it is draining. If buffer capacity is exceeded, Write blocks until the
// underlying writer starts to clear.
//
// Close propagates to the underlying io.Writer if it also implements
// io.Closer.
type AsyncSink struct {
	upstream    io.Writer
	cond        *sync.Cond
	buffer      []byte
	bufferIndex int

	writeNotify chan interface{}
	upstreamErr error
}

// NewAsyncSink starts the background writer goroutine and returns a sink with
// the given buffer capacity.
func NewAsyncSink(upstream io.Writer, capacity int) *AsyncSink {
	sink := &AsyncSink{
		upstream: upstream,
		cond:     sync.NewCond(&sync.Mutex{}),
		buffer:   make([]byte, capacity),

		writeNotify: make(chan interface{}, 1),
	}
	go func(sink *AsyncSink) {
		lastTransmittedIndex := 0
		for range sink.writeNotify {
			sink.cond.L.Lock()
			nextIndex := sink.bufferIndex
			sink.cond.L.Unlock()
			_, sink.upstreamErr = upstream.Write(sink.buffer[lastTransmittedIndex:nextIndex])
			lastTransmittedIndex = nextIndex
			if sink.upstreamErr != nil {
				return
			}
			sink.cond.L.Lock()
			// If we've written the entire buffer, reset the index to reclaim capacity.
			postWriteIndex := sink.bufferIndex
			if postWriteIndex == nextIndex {
				sink.bufferIndex = 0
				lastTransmittedIndex = 0
			}
			sink.cond.Signal()
			sink.cond.L.Unlock()
		}
	}(sink)
	return sink
}

func (sink *AsyncSink) Close() error {
	if sink.upstreamErr == nil {
		sink.upstreamErr = io.EOF
	}
	close(sink.writeNotify)
	sink.cond.Broadcast() // release any client waiting for space to write
	if closer, ok := sink.upstream.(io.Closer); ok {
		return closer.Close()
	}
	return nil
}

func (sink *AsyncSink) Write(p []byte) (int, error) {
	if sink.upstreamErr != nil {
		return 0, sink.upstreamErr
	}
	sink.cond.L.Lock()
	n := copy(sink.buffer[sink.bufferIndex:], p)
	sink.bufferIndex += n
	sink.cond.L.Unlock()

	select {
	case sink.writeNotify <- true:
		if len(p) > n {
			// Didn't fit in the buffer -- try to write the remainder.
			runtime.Gosched()
			m, err := sink.Write(p[n:])
			return n + m, err
		}
		return n, nil
	default:
		// Notification was rejected -- upstream must be slow.
		if len(p) > n {
			sink.cond.L.Lock()
			sink.cond.Wait()
			sink.cond.L.Unlock()
			m, err := sink.Write(p[n:])
			return n + m, err
		}
		return n, nil
	}
}
