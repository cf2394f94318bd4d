package stream

import (
	"bufio"
	"bytes"
	"io"
)

const readBufferSize = 64 * 1024

// lineReader yields payload lines of a stream, understanding both SSE
// framing and bare newline-delimited JSON.
type lineReader struct {
	r       *bufio.Reader
	pending []byte
}

func newLineReader(r io.Reader) *lineReader {
	return &lineReader{r: bufio.NewReaderSize(r, readBufferSize)}
}

// Next returns the next payload. For SSE input consecutive `data:` lines of
// one event are joined with "\n"; comment, event, id and retry lines are
// skipped. Lines without a field prefix are returned as they are.
func (d *lineReader) Next() ([]byte, error) {
	if d.pending != nil {
		p := d.pending
		d.pending = nil
		return p, nil
	}

	var dataLines [][]byte
	flush := func() []byte { return bytes.Join(dataLines, []byte("\n")) }

	for {
		line, err := d.r.ReadBytes('\n')
		line = bytes.TrimRight(line, "\r\n")

		if len(line) == 0 {
			if len(dataLines) > 0 {
				return flush(), nil
			}
		} else {
			payload, isData, skip := classifyLine(line)
			switch {
			case skip:
			case isData:
				dataLines = append(dataLines, payload)
			case len(dataLines) > 0:
				d.pending = payload
				return flush(), nil
			default:
				return payload, nil
			}
		}

		if err != nil {
			if len(dataLines) > 0 {
				return flush(), nil
			}
			return nil, err
		}
	}
}

func classifyLine(line []byte) (payload []byte, isData, skip bool) {
	if line[0] == ':' {
		return nil, false, true
	}
	for _, field := range [][]byte{[]byte("event:"), []byte("id:"), []byte("retry:")} {
		if bytes.HasPrefix(line, field) {
			return nil, false, true
		}
	}
	if bytes.HasPrefix(line, []byte("data:")) {
		val := line[len("data:"):]
		if len(val) > 0 && val[0] == ' ' {
			val = val[1:]
		}
		return append([]byte(nil), val...), true, false
	}
	return append([]byte(nil), bytes.TrimSpace(line)...), false, false
}
