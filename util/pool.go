package util

import (
	"bufio"
	"io"
	"sync"
)

// DefaultReadBufSize is the read buffer attached to each session.  It
// also bounds the longest request line a session holds in memory.
const DefaultReadBufSize = 4096

// readerPool recycles session read buffers; sessions are short-lived
// and a busy server opens many of them.
var readerPool = sync.Pool{
	New: func() interface{} {
		return bufio.NewReaderSize(nil, DefaultReadBufSize)
	},
}

// GetReader returns a pooled *bufio.Reader reading from r.  Callers
// must return it with [PutReader] once the connection is done.
func GetReader(r io.Reader) *bufio.Reader {
	br := readerPool.Get().(*bufio.Reader)
	br.Reset(r)
	return br
}

// PutReader detaches br from its source and returns it to the pool.
func PutReader(br *bufio.Reader) {
	if br == nil {
		return
	}
	br.Reset(nil)
	readerPool.Put(br)
}
