package main

import (
	"encoding/json"
	"fmt"
	"io"
	"net/url"
	"sort"
	"strconv"
	"text/tabwriter"

	"github.com/alfredjeanlab/provattrs/internal/document"
	"github.com/alfredjeanlab/provattrs/internal/eav"
	"github.com/alfredjeanlab/provattrs/internal/model"
	"github.com/alfredjeanlab/provattrs/internal/ui"
)

func printJSON(w io.Writer, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling JSON: %w", err)
	}
	_, err = fmt.Fprintln(w, string(data))
	return err
}

// printValues writes values sorted by key, either as one document or as a
// KEY/TYPE/VALUE table.
func printValues(w io.Writer, values map[string]model.Value) error {
	if jsonOutput {
		data, err := document.Marshal(values)
		if err != nil {
			return err
		}
		_, err = fmt.Fprintln(w, string(data))
		return err
	}
	keys := make([]string, 0, len(values))
	for k := range values {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "KEY\tTYPE\tVALUE")
	for _, k := range keys {
		data, err := document.MarshalValue(values[k])
		if err != nil {
			return fmt.Errorf("key %q: %w", k, err)
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\n", ui.RenderKey(k), ui.RenderType(eav.Classify(values[k]).String()), data)
	}
	return tw.Flush()
}

func printValue(w io.Writer, v model.Value) error {
	data, err := document.MarshalValue(v)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(w, string(data))
	return err
}

// printRows writes raw EAV rows in storage order.
func printRows(w io.Writer, rows []model.Row) error {
	if jsonOutput {
		return printJSON(w, rows)
	}
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "KEY\tDATATYPE\tVALUE")
	for _, r := range rows {
		fmt.Fprintf(tw, "%s\t%s\t%s\n", ui.RenderKey(r.Key), ui.RenderType(r.Datatype.String()), rowValue(r))
	}
	return tw.Flush()
}

func rowValue(r model.Row) string {
	switch {
	case r.BVal != nil:
		return strconv.FormatBool(*r.BVal)
	case r.IVal != nil:
		return strconv.FormatInt(*r.IVal, 10)
	case r.FVal != nil:
		return strconv.FormatFloat(*r.FVal, 'g', -1, 64)
	case r.DVal != nil:
		return r.DVal.Format(document.DateLayout)
	case r.Datatype == model.TypeNone:
		return "-"
	}
	return strconv.Quote(r.TVal)
}

// redactURL hides the password of a connection URL.
func redactURL(raw string) string {
	u, err := url.Parse(raw)
	if err != nil || u.User == nil {
		return raw
	}
	return u.Redacted()
}
