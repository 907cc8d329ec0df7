package storage

import (
	"fmt"
	"path"
	"strings"
	"unicode"

	"github.com/google/uuid"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// EnrollmentKey is the object key of an enrollment source image.
func EnrollmentKey(person, image string) string {
	ext := strings.ToLower(path.Ext(image))
	base := strings.TrimSuffix(path.Base(image), path.Ext(image))
	return fmt.Sprintf("enroll/%s/%s-%s%s", Slug(person), Slug(base), uuid.NewString()[:8], ext)
}

// EnrollmentPrefix is the key prefix of all images enrolled for person.
func EnrollmentPrefix(person string) string {
	return "enroll/" + Slug(person) + "/"
}

// FramePrefix is the key prefix of all frames captured by a camera.
func FramePrefix(cameraID uuid.UUID) string {
	return "frames/" + cameraID.String() + "/"
}

// FrameKey is the object key of one captured JPEG frame. Frame IDs are
// UUIDv7, so keys of one camera sort by capture time and Prune drops the oldest.
func FrameKey(cameraID, frameID uuid.UUID) string {
	return FramePrefix(cameraID) + frameID.String() + ".jpg"
}

// Slug turns a display name into an ASCII key segment: diacritics are
// stripped, runs of other characters become a single dash.
func Slug(s string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	plain, _, err := transform.String(t, s)
	if err != nil {
		plain = s
	}

	var b strings.Builder
	dash := false
	for _, r := range strings.ToLower(plain) {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') {
			b.WriteRune(r)
			dash = false
			continue
		}
		if !dash && b.Len() > 0 {
			b.WriteByte('-')
			dash = true
		}
	}
	out := strings.TrimSuffix(b.String(), "-")
	if out == "" {
		return "unnamed"
	}
	return out
}
