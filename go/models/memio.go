package models

// MemIO streams reads and writes through a Memory, advancing Addr.
type MemIO struct {
	Mem  Memory
	Addr uint64
}

func (m *MemIO) Read(p []byte) (int, error) {
	err := m.Mem.MemReadInto(p, m.Addr)
	if err != nil {
		return 0, err
	}
	m.Addr += uint64(len(p))
	return len(p), nil
}

func (m *MemIO) Write(p []byte) (int, error) {
	err := m.Mem.MemWrite(m.Addr, p)
	if err != nil {
		return 0, err
	}
	m.Addr += uint64(len(p))
	return len(p), nil
}
