package util

import (
	"bytes"
	"encoding/json"
)

// PrettyJSON reindents a JSON document for readability.
func PrettyJSON(contents []byte) ([]byte, error) {
	var buf bytes.Buffer
	err := json.Indent(&buf, contents, "", "  ")
	if err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// PrettyJSONIgnoreError returns the document unchanged when it does not
// reindent cleanly.
func PrettyJSONIgnoreError(contents []byte) []byte {
	pretty, err := PrettyJSON(contents)
	if err != nil {
		return contents
	}
	return pretty
}
