package ollama

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"iter"
	"log/slog"
	"strings"
)

// decodeStream yields wire responses from a newline-delimited JSON stream.
// Each line is one self-contained JSON object; there is no outer envelope or
// length prefix. The sequence is lazy and pull-based: r is read only as the
// consumer advances, so backpressure is intrinsic. Valid for a single range
// loop.
//
// A line that fails to parse is logged and skipped; decoding continues with
// the next line. A trailing partial line at end of stream is discarded. A
// read error (including a cancelled request aborting the body) terminates
// the sequence with that error.
func decodeStream(r io.Reader, log *slog.Logger) iter.Seq2[chatResponse, error] {
	return func(yield func(chatResponse, error) bool) {
		reader := bufio.NewReader(r)
		for {
			line, err := reader.ReadString('\n')
			if err != nil {
				if errors.Is(err, io.EOF) {
					return
				}
				yield(chatResponse{}, fmt.Errorf("ollama: read stream: %w", err))
				return
			}
			line = strings.TrimSpace(line)
			if line == "" {
				continue
			}
			var resp chatResponse
			if err := json.Unmarshal([]byte(line), &resp); err != nil {
				log.Warn("ollama: skipping malformed stream line", "err", err)
				continue
			}
			if !yield(resp, nil) {
				return
			}
		}
	}
}
