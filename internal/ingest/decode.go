package ingest

import (
	jsoniter "github.com/json-iterator/go"
	"github.com/pkg/errors"

	"tweetnorm/internal/extract"
	"tweetnorm/internal/model"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// Decode parses one archive line and extracts its candidate rows. Any
// failure matches model.ErrMalformedRecord.
func Decode(line []byte) (model.Rows, error) {
	var rec model.RawTweet
	if err := json.Unmarshal(line, &rec); err != nil {
		return model.Rows{}, errors.Wrapf(model.ErrMalformedRecord, "decode: %v", err)
	}
	return extract.Extract(&rec)
}
