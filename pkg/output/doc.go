// Package output encodes selection results and diff reports as line-delimited
// text: bare unique ids for the selector format, one JSON object per line for
// the json format.
//
//	enc, err := output.NewEncoder(output.FormatJSON, "unique_id", "name")
//	if err != nil {
//	    return err
//	}
//	return enc.Encode(os.Stdout, resources)
package output
