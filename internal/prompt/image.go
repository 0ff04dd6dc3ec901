package prompt

import (
	"encoding/base64"
	"mime"
	"net/http"
	"strings"

	"boq-estimator/internal/models"
)

// DefaultMediaType is used when neither the upload nor its content identify an image format.
const DefaultMediaType = "image/jpeg"

// EncodeImage base64-encodes raw upload bytes and tags them with a media type.
// The content is never inspected beyond format sniffing.
func EncodeImage(raw []byte, declared string) models.Image {
	return models.Image{
		MediaType: MediaType(declared, raw),
		Base64:    base64.StdEncoding.EncodeToString(raw),
	}
}

// MediaType picks the declared content type when it names an image, then the
// sniffed type, otherwise DefaultMediaType.
func MediaType(declared string, raw []byte) string {
	if mt, _, err := mime.ParseMediaType(strings.TrimSpace(declared)); err == nil && isImage(mt) {
		return mt
	}
	if len(raw) > 0 {
		if sniffed := http.DetectContentType(raw); isImage(sniffed) {
			return sniffed
		}
	}
	return DefaultMediaType
}

func isImage(mt string) bool {
	return strings.HasPrefix(strings.ToLower(mt), "image/")
}
