// Copyright (c) 2024 go-stopworld contributors
//
// Permission is hereby granted, free of charge, to any person obtaining a copy of
// this software and associated documentation files (the "Software"), to deal in
// the Software without restriction, including without limitation the rights to
// use, copy, modify, merge, publish, distribute, sublicense, and/or sell copies
// of the Software, and to permit persons to whom the Software is furnished to do
// so, subject to the following conditions:
//
// The above copyright notice and this permission notice shall be included in all
// copies or substantial portions of the Software.
//
// THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
// IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY,
// FITNESS FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT. IN NO EVENT SHALL THE
// AUTHORS OR COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER
// LIABILITY, WHETHER IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM,
// OUT OF OR IN CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN THE
// SOFTWARE.

// Package stopworld implements the thread-aware stop-the-world subsystem of a
// conservative mark-sweep collector: a signal-based suspend/restart handshake,
// a registry of the process's mutator threads, interception of thread
// creation/join/signal-mask so that registry always matches reality, and a
// lightweight adaptive spin lock guarding both the registry and the
// allocator's internal state.
//
// The collector itself (mark/sweep, heap layout, root-stack pushing, the
// command-line front end) lives outside this package; stopworld consumes it
// only through the Allocator and StackScanner interfaces plus the
// externally-supplied PrimordialStackBottom; the approximate stack pointer
// probe (approxSP) is implemented here.
//
// Mutator threads are registered kernel threads (goroutines pinned with
// runtime.LockOSThread), not arbitrary goroutines: the collector can only
// suspend what it can signal, and only a thread holding its own OS thread can
// receive a directed signal. See Checkpoint for how the suspend handshake is
// actually delivered.
package stopworld
