package source

import (
	"strconv"
	"strings"

	"conn-guard/internal/model"
)

const (
	DefaultDelimiter = ","
	minFields        = 4
	sourceField      = 1
	portField        = 2
)

// Parser turns raw traffic lines into connection records.
//
// Parsing is best effort: a line with fewer than four fields or a port field
// that is not an integer yields no record. Malformed input is data, so Parse
// never returns an error.
type Parser struct {
	delimiter string
}

func NewParser(delimiter string) *Parser {
	if delimiter == "" {
		delimiter = DefaultDelimiter
	}
	return &Parser{delimiter: delimiter}
}

var defaultParser = NewParser(DefaultDelimiter)

// Parse parses a line with the default delimiter
func Parse(line string) (*model.ConnectionRecord, bool) {
	return defaultParser.Parse(line)
}

func (p *Parser) Parse(line string) (*model.ConnectionRecord, bool) {
	fields := strings.Split(strings.TrimSpace(line), p.delimiter)
	if len(fields) < minFields {
		return nil, false
	}

	port, err := strconv.Atoi(strings.TrimSpace(fields[portField]))
	if err != nil {
		return nil, false
	}

	return &model.ConnectionRecord{
		Source:    fields[sourceField],
		Port:      port,
		RawFields: fields,
	}, true
}

// FormatLine renders a record in the wire layout understood by Parse.
// Sources that do not read text (pcap, Hubble, ...) use it so every record
// goes through the same parser.
func FormatLine(protocol, source string, port int, destination string) string {
	return strings.Join([]string{protocol, source, strconv.Itoa(port), destination}, DefaultDelimiter)
}
