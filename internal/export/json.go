// Package export writes runs out for other tools: JSON documents and
// rendered charts.
package export

import (
	"encoding/json"
	"io"
	"os"

	"github.com/san-kum/packsim/internal/output"
)

// Document is the JSON form of a series.
type Document struct {
	*output.Series
	Samples int    `json:"samples"`
	Error   string `json:"error,omitempty"`
}

func NewDocument(s *output.Series) Document {
	d := Document{Series: s, Samples: s.Len()}
	if s.Err != nil {
		d.Error = s.Err.Error()
	}
	return d
}

func WriteJSON(w io.Writer, s *output.Series) error {
	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "  ")
	return encoder.Encode(NewDocument(s))
}

func WriteJSONFile(path string, s *output.Series) error {
	file, err := os.Create(path)
	if err != nil {
		return err
	}
	defer file.Close()

	if err := WriteJSON(file, s); err != nil {
		return err
	}
	return file.Close()
}
