package netlist

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
)

// WriteCSV serialises the netlist with a desc,node1,node2,value header.
// Values use the shortest exact representation so Parse restores them
// bit for bit.
func WriteCSV(w io.Writer, nl *Netlist) error {
	cw := csv.NewWriter(w)
	if err := cw.Write([]string{"desc", "node1", "node2", "value"}); err != nil {
		return err
	}
	for _, e := range nl.Elements {
		row := []string{
			e.Desc,
			strconv.Itoa(e.Node1),
			strconv.Itoa(e.Node2),
			strconv.FormatFloat(e.Value, 'g', -1, 64),
		}
		if err := cw.Write(row); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// WriteText serialises the netlist one element per line.
func WriteText(w io.Writer, nl *Netlist) error {
	for _, e := range nl.Elements {
		if _, err := fmt.Fprintf(w, "%s %d %d %s\n", e.Desc, e.Node1, e.Node2,
			strconv.FormatFloat(e.Value, 'g', -1, 64)); err != nil {
			return err
		}
	}
	return nil
}

// WriteFile picks the format from the extension: .csv writes CSV,
// anything else the text form.
func WriteFile(path string, nl *Netlist) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	if strings.EqualFold(filepath.Ext(path), ".csv") {
		err = WriteCSV(f, nl)
	} else {
		err = WriteText(f, nl)
	}
	if err != nil {
		return err
	}
	return f.Close()
}

// Equal compares two netlists as unordered sets of elements.
func Equal(a, b *Netlist) bool {
	if len(a.Elements) != len(b.Elements) {
		return false
	}
	ka, kb := keys(a), keys(b)
	for i := range ka {
		if ka[i] != kb[i] {
			return false
		}
	}
	return true
}

func keys(nl *Netlist) []string {
	out := make([]string, len(nl.Elements))
	for i, e := range nl.Elements {
		out[i] = fmt.Sprintf("%s|%d|%d|%s", e.Desc, e.Node1, e.Node2,
			strconv.FormatFloat(e.Value, 'g', -1, 64))
	}
	sort.Strings(out)
	return out
}
