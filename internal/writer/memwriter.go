package writer

// MemWriter captures index bytes in memory, for tests and dry runs.
type MemWriter struct {
	Buf []byte
}

// WriteIndex stores a copy of the provided buffer.
func (w *MemWriter) WriteIndex(buf []byte) error {
	w.Buf = append(w.Buf[:0], buf...)
	return nil
}
