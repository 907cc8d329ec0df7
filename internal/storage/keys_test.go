package storage

import (
	"regexp"
	"strings"
	"testing"

	"github.com/google/uuid"
)

func TestSlug(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"Alice", "alice"},
		{"José Álvarez", "jose-alvarez"},
		{"Zoë  O'Brien", "zoe-o-brien"},
		{"  --weird__name--  ", "weird-name"},
		{"Łukasz", "ukasz"},
		{"李雷", "unnamed"},
		{"", "unnamed"},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			if got := Slug(tt.in); got != tt.want {
				t.Errorf("Slug(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

func TestEnrollmentKey(t *testing.T) {
	key := EnrollmentKey("Renée Dupont", "Front View.JPG")
	re := regexp.MustCompile(`^enroll/renee-dupont/front-view-[0-9a-f]{8}\.jpg$`)
	if !re.MatchString(key) {
		t.Errorf("EnrollmentKey = %q", key)
	}
	if !strings.HasPrefix(key, EnrollmentPrefix("Renée Dupont")) {
		t.Error("key should live under the person prefix")
	}
	if EnrollmentKey("a", "x.png") == EnrollmentKey("a", "x.png") {
		t.Error("repeated uploads of the same file name must not collide")
	}
}

func TestFrameKey(t *testing.T) {
	cam := uuid.MustParse("11111111-1111-1111-1111-111111111111")
	frame := uuid.MustParse("22222222-2222-2222-2222-222222222222")
	want := "frames/11111111-1111-1111-1111-111111111111/22222222-2222-2222-2222-222222222222.jpg"
	if got := FrameKey(cam, frame); got != want {
		t.Errorf("FrameKey = %q", got)
	}
}

func TestFrameKey_SortsByCaptureOrder(t *testing.T) {
	cam := uuid.New()
	var keys []string
	for i := 0; i < 20; i++ {
		id, err := uuid.NewV7()
		if err != nil {
			t.Fatal(err)
		}
		keys = append(keys, FrameKey(cam, id))
	}
	for i := 1; i < len(keys); i++ {
		if keys[i-1] >= keys[i] {
			t.Fatalf("key %d (%s) does not sort after %s", i, keys[i], keys[i-1])
		}
	}
}
