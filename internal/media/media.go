package media

import (
	"bytes"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/gabriel-vasile/mimetype"
)

// DefaultMIMEType is used when neither a declared type nor sniffing yields an image type.
const DefaultMIMEType = "image/jpeg"

// ErrEmptyImage is returned when image content has no bytes.
var ErrEmptyImage = errors.New("image is empty")

// Image is the binary content of a user-selected image together with its MIME type.
// Images are replaced, never mutated.
type Image struct {
	Data     []byte
	MIMEType string
}

// InlinePayload is the transport form of an image bundled into a model request.
type InlinePayload struct {
	Data     string // base64, without data URL header
	MIMEType string
}

// EncodingError reports that image content could not be read or encoded.
type EncodingError struct {
	Op  string
	Err error
}

func (e *EncodingError) Error() string {
	return fmt.Sprintf("image %s failed: %v", e.Op, e.Err)
}

func (e *EncodingError) Unwrap() error {
	return e.Err
}

// Read reads image content from r. declaredMIME is the type reported by the
// upload surface; when it is empty the type is sniffed from the content.
func Read(r io.Reader, declaredMIME string) (Image, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return Image{}, &EncodingError{Op: "read", Err: err}
	}
	if len(data) == 0 {
		return Image{}, &EncodingError{Op: "read", Err: ErrEmptyImage}
	}
	return Image{Data: data, MIMEType: resolveMIME(declaredMIME, data)}, nil
}

// FromBytes wraps already downloaded content as an Image.
func FromBytes(data []byte, declaredMIME string) (Image, error) {
	return Read(bytes.NewReader(data), declaredMIME)
}

func resolveMIME(declared string, data []byte) string {
	if declared = strings.TrimSpace(declared); declared != "" {
		return declared
	}
	detected := mimetype.Detect(data)
	if strings.HasPrefix(detected.String(), "image/") {
		return detected.String()
	}
	return DefaultMIMEType
}

// Encode produces the inline payload for img. The content is rendered as a
// data URL and the header is removed, leaving only the base64 data.
func Encode(img Image) (InlinePayload, error) {
	if len(img.Data) == 0 {
		return InlinePayload{}, &EncodingError{Op: "encode", Err: ErrEmptyImage}
	}
	mimeType := img.MIMEType
	if mimeType == "" {
		mimeType = DefaultMIMEType
	}
	dataURL := "data:" + mimeType + ";base64," + base64.StdEncoding.EncodeToString(img.Data)
	_, data, ok := strings.Cut(dataURL, ",")
	if !ok {
		return InlinePayload{}, &EncodingError{Op: "encode", Err: errors.New("malformed data url")}
	}
	return InlinePayload{Data: data, MIMEType: mimeType}, nil
}

// DataURL re-attaches the data URL header.
func (p InlinePayload) DataURL() string {
	return "data:" + p.MIMEType + ";base64," + p.Data
}

// Bytes decodes the payload back to raw content.
func (p InlinePayload) Bytes() ([]byte, error) {
	b, err := base64.StdEncoding.DecodeString(p.Data)
	if err != nil {
		return nil, &EncodingError{Op: "decode", Err: err}
	}
	return b, nil
}
