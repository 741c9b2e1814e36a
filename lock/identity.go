package lock

import "unsafe"

// uintptrOf returns a stable identity for a lock, used only to verify (in
// RemoteLock.Get) that a guard was produced by the expected lock instance.
func uintptrOf(p any) uintptr {
	switch v := p.(type) {
	case *Spinlock:
		return uintptr(unsafe.Pointer(v))
	case *Sleeplock:
		return uintptr(unsafe.Pointer(v))
	case *Sleepablelock:
		return uintptr(unsafe.Pointer(v))
	default:
		return 0
	}
}
