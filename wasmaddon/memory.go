package wasmaddon

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/tetratelabs/wazero/api"
	"go.uber.org/zap"

	addonbridge "github.com/wippyai/addon-bridge"
)

// guestMemory wraps wazero memory to implement addonbridge.Memory.
type guestMemory struct {
	mem api.Memory
}

func (m *guestMemory) Read(offset uint32, length uint32) ([]byte, error) {
	data, ok := m.mem.Read(offset, length)
	if !ok {
		return nil, fmt.Errorf("read out of bounds: offset=%d, length=%d", offset, length)
	}
	return data, nil
}

func (m *guestMemory) Write(offset uint32, data []byte) error {
	if !m.mem.Write(offset, data) {
		return fmt.Errorf("write out of bounds: offset=%d, length=%d", offset, len(data))
	}
	return nil
}

func (m *guestMemory) ReadU8(offset uint32) (uint8, error) {
	v, ok := m.mem.ReadByte(offset)
	if !ok {
		return 0, fmt.Errorf("read out of bounds: offset=%d, length=1", offset)
	}
	return v, nil
}

func (m *guestMemory) ReadU16(offset uint32) (uint16, error) {
	v, ok := m.mem.ReadUint16Le(offset)
	if !ok {
		return 0, fmt.Errorf("read out of bounds: offset=%d, length=2", offset)
	}
	return v, nil
}

func (m *guestMemory) ReadU32(offset uint32) (uint32, error) {
	v, ok := m.mem.ReadUint32Le(offset)
	if !ok {
		return 0, fmt.Errorf("read out of bounds: offset=%d, length=4", offset)
	}
	return v, nil
}

func (m *guestMemory) ReadU64(offset uint32) (uint64, error) {
	v, ok := m.mem.ReadUint64Le(offset)
	if !ok {
		return 0, fmt.Errorf("read out of bounds: offset=%d, length=8", offset)
	}
	return v, nil
}

func (m *guestMemory) WriteU8(offset uint32, value uint8) error {
	if !m.mem.WriteByte(offset, value) {
		return fmt.Errorf("write out of bounds: offset=%d, length=1", offset)
	}
	return nil
}

func (m *guestMemory) WriteU16(offset uint32, value uint16) error {
	if !m.mem.WriteUint16Le(offset, value) {
		return fmt.Errorf("write out of bounds: offset=%d, length=2", offset)
	}
	return nil
}

func (m *guestMemory) WriteU32(offset uint32, value uint32) error {
	if !m.mem.WriteUint32Le(offset, value) {
		return fmt.Errorf("write out of bounds: offset=%d, length=4", offset)
	}
	return nil
}

func (m *guestMemory) WriteU64(offset uint32, value uint64) error {
	if !m.mem.WriteUint64Le(offset, value) {
		return fmt.Errorf("write out of bounds: offset=%d, length=8", offset)
	}
	return nil
}

// guestAllocator implements addonbridge.Allocator over the guest's exported
// allocator functions. All calls run on the environment thread, the mutex
// only guards the reusable stack buffer against misuse.
type guestAllocator struct {
	ctx     context.Context
	allocFn api.Function
	freeFn  api.Function

	// realloc marks a 4-parameter cabi_realloc shape, freeAlign a
	// 3-parameter free that takes alignment.
	realloc   bool
	freeAlign bool

	mu       sync.Mutex
	stackBuf []uint64
}

func (a *guestAllocator) Alloc(size, align uint32) (uint32, error) {
	if a.allocFn == nil {
		return 0, errors.New("no allocator available")
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	if a.realloc {
		a.stackBuf[0] = 0
		a.stackBuf[1] = 0
		a.stackBuf[2] = uint64(align)
		a.stackBuf[3] = uint64(size)
		if err := a.allocFn.CallWithStack(a.ctx, a.stackBuf[:4]); err != nil {
			return 0, err
		}
		return uint32(a.stackBuf[0]), nil
	}
	a.stackBuf[0] = uint64(size)
	if err := a.allocFn.CallWithStack(a.ctx, a.stackBuf[:1]); err != nil {
		return 0, err
	}
	return uint32(a.stackBuf[0]), nil
}

func (a *guestAllocator) Free(ptr, size, align uint32) {
	if a.freeFn == nil || ptr == 0 {
		return
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	a.stackBuf[0] = uint64(ptr)
	a.stackBuf[1] = uint64(size)
	n := 2
	if a.freeAlign {
		a.stackBuf[2] = uint64(align)
		n = 3
	}
	if err := a.freeFn.CallWithStack(a.ctx, a.stackBuf[:n]); err != nil {
		Logger().Warn("guest deallocation failed",
			zap.Uint32("ptr", ptr),
			zap.Uint32("size", size),
			zap.Error(err))
	}
}

// discoverAllocator finds the guest's exported allocator, preferring the
// component-model realloc shape over the simple one.
func discoverAllocator(ctx context.Context, mod api.Module) *guestAllocator {
	a := &guestAllocator{
		ctx:      ctx,
		stackBuf: make([]uint64, 4),
	}
	if fn := mod.ExportedFunction(cabiRealloc); fn != nil {
		a.allocFn = fn
		a.realloc = len(fn.Definition().ParamTypes()) >= 4
	} else if fn := mod.ExportedFunction(guestAlloc); fn != nil {
		a.allocFn = fn
	}
	if fn := mod.ExportedFunction(cabiFree); fn != nil {
		a.freeFn = fn
		a.freeAlign = len(fn.Definition().ParamTypes()) >= 3
	} else if fn := mod.ExportedFunction(guestFree); fn != nil {
		a.freeFn = fn
		a.freeAlign = len(fn.Definition().ParamTypes()) >= 3
	}
	return a
}

// Compile-time check that the adapters satisfy the root interfaces.
var _ addonbridge.Memory = (*guestMemory)(nil)
var _ addonbridge.Allocator = (*guestAllocator)(nil)
