package extract

import (
	"encoding/base64"
	"fmt"
	"strings"
)

// Image is a screenshot as the browser sends it: base64 without the
// data: URL prefix.
type Image struct {
	Data     string `json:"data"`
	MimeType string `json:"mimeType"`
}

func (img Image) Valid() bool {
	return img.Data != "" && img.MimeType != ""
}

// Bytes decodes the image.  A leftover data URL prefix is tolerated.
func (img Image) Bytes() ([]byte, error) {
	data := img.Data
	if strings.HasPrefix(data, "data:") {
		if comma := strings.IndexByte(data, ','); comma >= 0 {
			data = data[comma+1:]
		}
	}
	b, err := base64.StdEncoding.DecodeString(data)
	if err != nil {
		return nil, fmt.Errorf("can't decode %s image: %w", img.MimeType, err)
	}
	return b, nil
}
