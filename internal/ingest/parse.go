package ingest

import (
	"bufio"
	"compress/gzip"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/sessionkit/wsknn/internal/engine"
)

// ParserConfig controls how raw interaction feeds become builder state.
// AllowedActions maps interaction names to their weights; events with other
// actions are dropped. PurchaseAction names the terminal event whose weight
// is added to every prior event weight of the session instead of being
// appended itself.
type ParserConfig struct {
	Fields         FieldMap           `mapstructure:"fields"`
	AllowedActions map[string]float64 `mapstructure:"allowed_actions"`
	PurchaseAction string             `mapstructure:"purchase_action"`
}

// Parser turns raw interaction feeds into session and item builders.
type Parser struct {
	cfg    ParserConfig
	logger *logrus.Logger
}

func NewParser(cfg ParserConfig, logger *logrus.Logger) *Parser {
	if cfg.Fields == (FieldMap{}) {
		cfg.Fields = DefaultFieldMap()
	}
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &Parser{cfg: cfg, logger: logger}
}

// ParseFile reads an interaction feed from disk. Supported inputs are JSONL
// files, JSON arrays, CSV logs and their gzipped variants; anything else
// reports ErrUnsupportedInput.
func (p *Parser) ParseFile(path string) (*SessionBuilder, *ItemBuilder, error) {
	reader, closer, err := openMaybeGzip(path)
	if err != nil {
		return nil, nil, err
	}
	defer closer()

	if strings.HasSuffix(strings.TrimSuffix(path, ".gz"), ".csv") {
		return p.ParseCSV(reader)
	}
	return p.Parse(reader)
}

// Parse consumes a stream of interaction records. The stream may be one JSON
// array or newline-delimited JSON objects.
func (p *Parser) Parse(r io.Reader) (*SessionBuilder, *ItemBuilder, error) {
	sessions := NewSessionBuilder(p.cfg.Fields.ActionKey != "", p.cfg.AllowedActions)
	items := NewItemBuilder()

	buffered := bufio.NewReader(r)
	head, err := peekNonSpace(buffered)
	if err == io.EOF {
		return sessions, items, nil
	}
	if err != nil {
		return nil, nil, err
	}

	if head == '[' {
		var records []map[string]interface{}
		if err := json.NewDecoder(buffered).Decode(&records); err != nil {
			return nil, nil, fmt.Errorf("%w: %v", engine.ErrUnsupportedInput, err)
		}
		for _, record := range records {
			if err := p.consume(record, sessions, items); err != nil {
				return nil, nil, err
			}
		}
		return sessions, items, nil
	}

	scanner := bufio.NewScanner(buffered)
	scanner.Buffer(make([]byte, 0, 64*1024), 8*1024*1024)
	line := 0
	for scanner.Scan() {
		line++
		text := strings.TrimSpace(scanner.Text())
		if text == "" {
			continue
		}
		var record map[string]interface{}
		if err := json.Unmarshal([]byte(text), &record); err != nil {
			return nil, nil, fmt.Errorf("%w: line %d: %v", engine.ErrUnsupportedInput, line, err)
		}
		if err := p.consume(record, sessions, items); err != nil {
			return nil, nil, fmt.Errorf("line %d: %w", line, err)
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, nil, err
	}
	return sessions, items, nil
}

// ParseCSV consumes a comma-separated event log. The header row names the
// columns; the configured field map picks session, item, time and action
// out of it.
func (p *Parser) ParseCSV(r io.Reader) (*SessionBuilder, *ItemBuilder, error) {
	sessions := NewSessionBuilder(p.cfg.Fields.ActionKey != "", p.cfg.AllowedActions)
	items := NewItemBuilder()

	cr := csv.NewReader(r)
	header, err := cr.Read()
	if err == io.EOF {
		return sessions, items, nil
	}
	if err != nil {
		return nil, nil, fmt.Errorf("%w: %v", engine.ErrUnsupportedInput, err)
	}

	columns := make(map[string]int, len(header))
	for i, name := range header {
		columns[strings.TrimSpace(name)] = i
	}

	line := 1
	for {
		row, err := cr.Read()
		if err == io.EOF {
			break
		}
		line++
		if err != nil {
			return nil, nil, fmt.Errorf("%w: line %d: %v", engine.ErrUnsupportedInput, line, err)
		}

		record := make(map[string]interface{}, len(columns))
		for name, idx := range columns {
			if idx < len(row) {
				record[name] = row[idx]
			}
		}
		if err := p.consume(record, sessions, items); err != nil {
			return nil, nil, fmt.Errorf("line %d: %w", line, err)
		}
	}
	return sessions, items, nil
}

// consume routes one raw record. Purchase events boost the weights of their
// session instead of entering the index; events with unlisted actions are
// dropped.
func (p *Parser) consume(record map[string]interface{}, sessions *SessionBuilder, items *ItemBuilder) error {
	event, ok, err := p.cfg.Fields.DecodeEvent(record)
	if err != nil {
		return err
	}
	if !ok {
		return nil
	}

	if p.cfg.PurchaseAction != "" && event.Action == p.cfg.PurchaseAction {
		factor := p.cfg.AllowedActions[p.cfg.PurchaseAction]
		if !sessions.BoostWeights(event.SessionID, factor, nil) {
			p.logger.WithFields(logrus.Fields{
				"session_id": event.SessionID,
				"action":     event.Action,
			}).Debug("Purchase event for session without prior interactions")
		}
		return nil
	}

	if p.cfg.AllowedActions != nil {
		if _, allowed := p.cfg.AllowedActions[event.Action]; !allowed {
			return nil
		}
	}

	sessions.Append(event)
	items.Append(event)
	return nil
}

// openMaybeGzip opens path and transparently unwraps a gzip layer based on
// the file extension. Unknown extensions report ErrUnsupportedInput.
func openMaybeGzip(path string) (io.Reader, func() error, error) {
	switch {
	case strings.HasSuffix(path, ".gz"):
		f, err := os.Open(path)
		if err != nil {
			return nil, nil, err
		}
		gz, err := gzip.NewReader(f)
		if err != nil {
			f.Close()
			return nil, nil, err
		}
		closer := func() error {
			gz.Close()
			return f.Close()
		}
		return gz, closer, nil
	case strings.HasSuffix(path, ".json"), strings.HasSuffix(path, ".jsonl"), strings.HasSuffix(path, ".csv"):
		f, err := os.Open(path)
		if err != nil {
			return nil, nil, err
		}
		return f, f.Close, nil
	default:
		return nil, nil, fmt.Errorf("%w: parser reads .gz, .json, .jsonl and .csv files, got %q",
			engine.ErrUnsupportedInput, filepath.Ext(path))
	}
}

func peekNonSpace(r *bufio.Reader) (byte, error) {
	for {
		b, err := r.ReadByte()
		if err != nil {
			return 0, err
		}
		if strings.TrimSpace(string(b)) == "" {
			continue
		}
		if err := r.UnreadByte(); err != nil {
			return 0, err
		}
		return b, nil
	}
}
