// Package context implements the execution-context manager: per-callback
// data and retain stacks, nesting/unnesting across foreign-code callbacks,
// and stack<->array conversion (spec.md §4.6 "Context Manager").
//
// Directly ported from _examples/original_source/vm/contexts.cpp, with the
// free-list shape of alloc_context/dealloc_context grounded on the
// teacher's fixalloc (mfixalloc.go).
package context

import (
	"unsafe"

	"github.com/pkg/errors"

	"github.com/stephenalindsay/factorcore/internal/cell"
	"github.com/stephenalindsay/factorcore/internal/zone"
)

// reservedCells mirrors the source's #define RESERVED (64 * CELLS):
// fix_stacks resets a stack if it comes within this many cells of its top.
const reservedCells = 64

// Context is one suspended (or currently executing) call frame: its own
// data-stack and retain-stack segments, the live top-of-stack pointers for
// whichever frame currently owns them, and the scalar slots restored
// verbatim when the frame's callback returns (spec.md §3 "Context").
type Context struct {
	DSRegion *zone.Segment
	RSRegion *zone.Segment

	// DSTop/RSTop are the live "register" pointers themselves while this
	// context is the current head of the chain, so (*Manager).SaveStacks
	// has nothing to copy.
	DSTop uintptr
	RSTop uintptr

	// Set by (*Manager).Nest on the newly nested context to the values of
	// the context beneath it; restored verbatim into that context by
	// (*Manager).Unnest regardless of what foreign code did to any real
	// registers in the meantime.
	DataStackSave       uintptr
	RetainStackSave     uintptr
	CatchStackSave      cell.Cell
	CurrentCallbackSave cell.Cell

	// CallstackBottom/Top are call-frame bookkeeping outside this core's
	// scope; nest_stacks sets both to the "no frames yet" sentinel.
	CallstackBottom uintptr
	CallstackTop    uintptr

	Next *Context
}

// noFrameSentinel mirrors (F_STACK_FRAME *)-1.
const noFrameSentinel = ^uintptr(0)

// CatchStackAddr returns the address of CatchStackSave, for the root
// scanner to treat as a handle (copy_handle(&stacks->catchstack_save)).
func (c *Context) CatchStackAddr() uintptr {
	return uintptr(unsafe.Pointer(&c.CatchStackSave))
}

// CurrentCallbackAddr returns the address of CurrentCallbackSave, for the
// root scanner (copy_handle(&stacks->current_callback_save)).
func (c *Context) CurrentCallbackAddr() uintptr {
	return uintptr(unsafe.Pointer(&c.CurrentCallbackSave))
}

// Manager owns the context chain and the free list of recycled contexts
// (spec.md §3 "Context": stack_chain, unused_contexts).
type Manager struct {
	dsSize uintptr
	rsSize uintptr

	chain  *Context // head is the current context
	unused *Context // free list; contexts (and their segments) are recycled
}

// NewManager performs init_stacks: records segment sizes and starts with an
// empty chain and free list, then allocates the single root context every
// VM starts executing in (spec.md's context chain always has a head).
func NewManager(dsSize, rsSize uintptr) (*Manager, error) {
	m := &Manager{dsSize: dsSize, rsSize: rsSize}
	root, err := m.allocContext()
	if err != nil {
		return nil, errors.Wrap(err, "context: allocating root context")
	}
	root.CallstackBottom = noFrameSentinel
	root.CallstackTop = noFrameSentinel
	root.DSTop = root.DSRegion.Start - zone.WordSize
	root.RSTop = root.RSRegion.Start - zone.WordSize
	m.chain = root
	return m, nil
}

// Current returns the head of the stack chain: the context whose stacks are
// presently live.
func (m *Manager) Current() *Context { return m.chain }

// Chain returns the full chain, head first, for the root scanner to walk
// (spec.md §4.4 point 4).
func (m *Manager) Chain() *Context { return m.chain }

// allocContext performs alloc_context: pop the free list if non-empty,
// otherwise allocate fresh data/retain-stack segments.
func (m *Manager) allocContext() (*Context, error) {
	if m.unused != nil {
		c := m.unused
		m.unused = c.Next
		c.Next = nil
		return c, nil
	}
	ds, err := zone.AllocSegment(m.dsSize)
	if err != nil {
		return nil, errors.Wrap(err, "context: allocating data-stack segment")
	}
	rs, err := zone.AllocSegment(m.rsSize)
	if err != nil {
		return nil, errors.Wrap(err, "context: allocating retain-stack segment")
	}
	return &Context{DSRegion: ds, RSRegion: rs}, nil
}

// release performs dealloc_context: push c onto the free list. Contexts are
// never actually freed; their segments are reused by future Nest calls.
func (m *Manager) release(c *Context) {
	c.Next = m.unused
	m.unused = c
}

// resetDataStack performs reset_datastack: ds := ds_bot - CELLS, meaning
// "empty".
func (c *Context) resetDataStack() { c.DSTop = c.DSRegion.Start - zone.WordSize }

// resetRetainStack performs reset_retainstack.
func (c *Context) resetRetainStack() { c.RSTop = c.RSRegion.Start - zone.WordSize }

// FixStacks guards against underflow/overflow that slipped past
// per-operation checks before entering foreign code (spec.md's "Reserve
// invariant"): if either pointer is below bot-CELLS or above
// top-RESERVED, the corresponding stack is reset.
func (c *Context) FixStacks() {
	reserved := reservedCells * zone.WordSize
	dsBot := c.DSRegion.Start
	dsTop := c.DSRegion.End
	if c.DSTop+zone.WordSize < dsBot || c.DSTop+reserved >= dsTop {
		c.resetDataStack()
	}
	rsBot := c.RSRegion.Start
	rsTop := c.RSRegion.End
	if c.RSTop+zone.WordSize < rsBot || c.RSTop+reserved >= rsTop {
		c.resetRetainStack()
	}
}

// SaveStacks mirrors the current "register" pointers into the head
// context, called before any operation that may reenter foreign code or
// trigger a GC (spec.md §4.4 point 4, §9 "Register-resident stack
// pointers"). In this Go port the live pointers already live directly on
// the head Context, so SaveStacks is a no-op kept only so callers follow
// the same save-before-scan discipline the source requires.
func (m *Manager) SaveStacks() {}

// Nest performs nest_stacks: entering a callback from foreign code.
// currentCallback/catchStack are the current values of the VM's
// user-environment slots for CURRENT_CALLBACK_ENV and CATCHSTACK_ENV; they
// are snapshotted into the new context, and Nest does not touch the
// environment array itself (the caller is free to overwrite them for the nested callback).
func (m *Manager) Nest(currentCallback, catchStack cell.Cell) (*Context, error) {
	next, err := m.allocContext()
	if err != nil {
		return nil, errors.Wrap(err, "context: nest_stacks")
	}

	next.CallstackBottom = noFrameSentinel
	next.CallstackTop = noFrameSentinel

	// These are not necessarily valid stack pointers: they are merely
	// saved caller-side register values, restored verbatim in Unnest
	// regardless of what foreign code does to real registers meanwhile.
	next.DataStackSave = m.chain.DSTop
	next.RetainStackSave = m.chain.RSTop
	next.CurrentCallbackSave = currentCallback
	next.CatchStackSave = catchStack

	next.Next = m.chain
	m.chain = next

	next.resetDataStack()
	next.resetRetainStack()

	return next, nil
}

// Unnest performs unnest_stacks: leaving a compiled callback. It pops the
// head context onto the free list, restores the data/retain-stack pointers
// saved by Nest into the new head, and returns those restored pointers
// together with the saved currentCallback/catchStack values for the caller
// to write back into the user environment.
func (m *Manager) Unnest() (ds, rs uintptr, currentCallback, catchStack cell.Cell) {
	head := m.chain
	ds = head.DataStackSave
	rs = head.RetainStackSave
	currentCallback = head.CurrentCallbackSave
	catchStack = head.CatchStackSave

	m.chain = head.Next
	m.chain.DSTop = ds
	m.chain.RSTop = rs

	m.release(head)
	return ds, rs, currentCallback, catchStack
}
