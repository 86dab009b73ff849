package table

import (
	"archive/zip"
	"bufio"
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sort"
	"strconv"
	"strings"

	"github.com/nicktill/damwatch/pkg/config"
)

// nullTokens are the cell spellings read as missing values.
var nullTokens = map[string]bool{
	"":         true,
	"#N/A":     true,
	"#N/A N/A": true,
	"#NA":      true,
	"-1.#IND":  true,
	"-1.#QNAN": true,
	"-NaN":     true,
	"-nan":     true,
	"1.#IND":   true,
	"1.#QNAN":  true,
	"<NA>":     true,
	"N/A":      true,
	"NA":       true,
	"NULL":     true,
	"NaN":      true,
	"None":     true,
	"n/a":      true,
	"nan":      true,
	"null":     true,
}

// ParseStats counts what happened to each file handed to the parser.
type ParseStats struct {
	Files           int `json:"files"`
	Parsed          int `json:"parsed"`
	SkippedHealth   int `json:"skipped_health"`
	SkippedFiletype int `json:"skipped_filetype"`
	Failed          int `json:"failed"`
	Rows            int `json:"rows"`
}

// Parser turns downloaded payloads into one table per node.
type Parser struct {
	// SkipLines is the number of physical lines dropped before the header.
	SkipLines int

	logger *slog.Logger
}

// NewParser creates a parser for the gateway's CSV layout.
func NewParser(logger *slog.Logger) *Parser {
	if logger == nil {
		logger = slog.Default()
	}
	return &Parser{
		SkipLines: config.HeaderSkipLines,
		logger:    logger,
	}
}

// Parse parses every payload and concatenates the tables of each node.
// Files that cannot be parsed are skipped; a node without any parsed
// file is absent from the result.
func (p *Parser) Parse(payloads map[string][]RawPayload) (map[string]*Table, ParseStats) {
	var stats ParseStats
	out := make(map[string]*Table)

	nodes := make([]string, 0, len(payloads))
	for node := range payloads {
		nodes = append(nodes, node)
	}
	sort.Strings(nodes)

	for _, node := range nodes {
		var parts []*Table
		for _, f := range payloads[node] {
			stats.Files++
			tables := p.parseFile(node, f, &stats)
			parts = append(parts, tables...)
		}
		if len(parts) == 0 {
			p.logger.Debug("node has no parsable files", "node", node)
			continue
		}
		t := Concat(parts...)
		stats.Rows += t.Len()
		out[node] = t
	}

	return out, stats
}

func (p *Parser) parseFile(node string, f RawPayload, stats *ParseStats) []*Table {
	name := strings.ToLower(f.Filename)
	switch {
	case strings.Contains(name, config.HealthMarker):
		stats.SkippedHealth++
		return nil
	case strings.HasSuffix(name, config.TableExt):
		t, err := ParseCSV(bytes.NewReader(f.Data), p.SkipLines)
		if err != nil {
			stats.Failed++
			p.logger.Warn("skipping unparsable file", "node", node, "file", f.Filename, "error", err)
			return nil
		}
		stats.Parsed++
		return []*Table{t}
	case strings.HasSuffix(name, config.ArchiveExt):
		tables, err := p.parseArchive(f.Data, stats)
		if err != nil {
			stats.Failed++
			p.logger.Warn("archive read aborted", "node", node, "file", f.Filename, "kept", len(tables), "error", err)
		} else {
			stats.Parsed++
		}
		return tables
	default:
		stats.SkippedFiletype++
		p.logger.Debug("skipping file", "node", node, "file", f.Filename, "error", ErrUnsupportedFile)
		return nil
	}
}

// parseArchive parses the table members of a zip payload. A failing
// member stops the walk; members parsed before it are kept.
func (p *Parser) parseArchive(data []byte, stats *ParseStats) ([]*Table, error) {
	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, fmt.Errorf("open archive: %w", err)
	}

	var tables []*Table
	for _, member := range zr.File {
		name := strings.ToLower(member.Name)
		if strings.Contains(name, config.HealthMarker) {
			stats.SkippedHealth++
			continue
		}
		if !strings.HasSuffix(name, config.TableExt) {
			continue
		}

		t, err := parseMember(member, p.SkipLines)
		if err != nil {
			return tables, fmt.Errorf("member %s: %w", member.Name, err)
		}
		tables = append(tables, t)
	}
	return tables, nil
}

func parseMember(member *zip.File, skip int) (*Table, error) {
	rc, err := member.Open()
	if err != nil {
		return nil, err
	}
	defer rc.Close()
	return ParseCSV(rc, skip)
}

// ParseCSV drops skip physical lines, then reads a header row and the
// data rows beneath it. Short rows are padded with nulls.
func ParseCSV(r io.Reader, skip int) (*Table, error) {
	br := bufio.NewReader(r)
	for i := 0; i < skip; i++ {
		if _, err := br.ReadString('\n'); err != nil {
			if errors.Is(err, io.EOF) {
				return nil, ErrTooShort
			}
			return nil, err
		}
	}

	cr := csv.NewReader(br)
	cr.FieldsPerRecord = -1
	cr.LazyQuotes = true

	header, err := cr.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, ErrTooShort
		}
		return nil, fmt.Errorf("read header: %w", err)
	}

	t := &Table{Columns: headerNames(header)}
	for {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read row: %w", err)
		}
		if len(rec) > len(t.Columns) {
			line, _ := cr.FieldPos(0)
			return nil, fmt.Errorf("line %d: %w", line+skip, ErrRowTooWide)
		}

		row := make([]Value, len(t.Columns))
		for i, field := range rec {
			if !nullTokens[strings.TrimSpace(field)] {
				row[i] = String(field)
			}
		}
		t.Rows = append(t.Rows, row)
	}
	return t, nil
}

// headerNames strips a byte-order mark, names blank headers after their
// position and suffixes repeated names with ".N".
func headerNames(header []string) []string {
	names := make([]string, len(header))
	used := make(map[string]bool)
	repeats := make(map[string]int)
	for i, h := range header {
		if i == 0 {
			h = strings.TrimPrefix(h, "\ufeff")
		}
		if strings.TrimSpace(h) == "" {
			h = "Unnamed: " + strconv.Itoa(i)
		}
		name := h
		for used[name] {
			repeats[h]++
			name = h + "." + strconv.Itoa(repeats[h])
		}
		used[name] = true
		names[i] = name
	}
	return names
}
