package source

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParser(t *testing.T) {
	parser := NewParser(DefaultDelimiter)

	tests := []struct {
		name       string
		line       string
		wantOK     bool
		wantSource string
		wantPort   int
		wantFields int
	}{
		{
			name:       "four fields",
			line:       "x,10.0.0.1,8080,y",
			wantOK:     true,
			wantSource: "10.0.0.1",
			wantPort:   8080,
			wantFields: 4,
		},
		{
			name:       "extra fields are kept",
			line:       "2024-01-01 10:00:00,192.168.1.5,22,tcp,SYN",
			wantOK:     true,
			wantSource: "192.168.1.5",
			wantPort:   22,
			wantFields: 5,
		},
		{
			name:       "surrounding whitespace and newline",
			line:       "  x,10.0.0.2, 443 ,y\n",
			wantOK:     true,
			wantSource: "10.0.0.2",
			wantPort:   443,
			wantFields: 4,
		},
		{
			name:       "source is not validated",
			line:       "x,not-an-ip,25,y",
			wantOK:     true,
			wantSource: "not-an-ip",
			wantPort:   25,
			wantFields: 4,
		},
		{
			name:   "non numeric port",
			line:   "x,10.0.0.3,notaport,y",
			wantOK: false,
		},
		{
			name:   "three fields",
			line:   "x,10.0.0.4,8080",
			wantOK: false,
		},
		{
			name:   "empty port",
			line:   "x,10.0.0.5,,y",
			wantOK: false,
		},
		{
			name:   "empty line",
			line:   "",
			wantOK: false,
		},
		{
			name:   "wrong delimiter",
			line:   "x;10.0.0.6;8080;y",
			wantOK: false,
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			record, ok := parser.Parse(tc.line)

			if !tc.wantOK {
				assert.False(t, ok)
				assert.Nil(t, record)
				return
			}

			require.True(t, ok)
			require.NotNil(t, record)
			assert.Equal(t, tc.wantSource, record.Source)
			assert.Equal(t, tc.wantPort, record.Port)
			assert.Len(t, record.RawFields, tc.wantFields)
		})
	}
}

func TestParserCustomDelimiter(t *testing.T) {
	parser := NewParser(";")

	record, ok := parser.Parse("x;10.0.0.1;8080;y")
	require.True(t, ok)
	assert.Equal(t, "10.0.0.1", record.Source)
	assert.Equal(t, 8080, record.Port)

	_, ok = parser.Parse("x,10.0.0.1,8080,y")
	assert.False(t, ok)
}

func TestFormatLineRoundTrip(t *testing.T) {
	line := FormatLine("tcp", "10.1.2.3", 3306, "10.0.0.9")
	assert.Equal(t, "tcp,10.1.2.3,3306,10.0.0.9", line)

	record, ok := Parse(line)
	require.True(t, ok)
	assert.Equal(t, "10.1.2.3", record.Source)
	assert.Equal(t, 3306, record.Port)
}
