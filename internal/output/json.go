package output

import (
	"encoding/json"

	"github.com/cecil-the-coder/mail-dispatch-kit/pkg/dispatch"
)

// JSONFormatter renders results as JSON.
type JSONFormatter struct {
	Indent bool
}

// FormatResult renders a dispatch result as JSON.
func (f *JSONFormatter) FormatResult(result *dispatch.Result) (string, error) {
	var (
		data []byte
		err  error
	)
	if f.Indent {
		data, err = json.MarshalIndent(result, "", "  ")
	} else {
		data, err = json.Marshal(result)
	}
	if err != nil {
		return "", err
	}
	return string(data), nil
}
