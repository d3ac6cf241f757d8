package ingest

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/sessionkit/wsknn/internal/engine"
)

// LoadSessionIndex reads a prebuilt session index from a JSONL file where
// every line is an object of session records, merged into one map. Gzipped
// files unwrap by extension.
func LoadSessionIndex(path string, layout RecordLayout) (engine.SessionIndex, error) {
	reader, closer, err := openMaybeGzip(path)
	if err != nil {
		return nil, err
	}
	defer closer()

	merged := make(map[string]interface{})
	if err := mergeJSONLines(reader, merged); err != nil {
		return nil, err
	}
	return DecodeSessionIndex(merged, layout)
}

// LoadItemIndex reads a prebuilt item index from a JSONL file, merged across
// lines like LoadSessionIndex.
func LoadItemIndex(path string) (engine.ItemIndex, error) {
	reader, closer, err := openMaybeGzip(path)
	if err != nil {
		return nil, err
	}
	defer closer()

	merged := make(map[string]interface{})
	if err := mergeJSONLines(reader, merged); err != nil {
		return nil, err
	}
	return DecodeItemIndex(merged)
}

// mergeJSONLines folds every JSON object line of r into dst. Later lines
// overwrite earlier keys.
func mergeJSONLines(r io.Reader, dst map[string]interface{}) error {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 64*1024*1024)
	line := 0
	for scanner.Scan() {
		line++
		text := strings.TrimSpace(scanner.Text())
		if text == "" {
			continue
		}
		var chunk map[string]interface{}
		if err := json.Unmarshal([]byte(text), &chunk); err != nil {
			return fmt.Errorf("%w: line %d: %v", engine.ErrUnsupportedInput, line, err)
		}
		for key, value := range chunk {
			dst[key] = value
		}
	}
	return scanner.Err()
}
