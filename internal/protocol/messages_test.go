package protocol

import "testing"

func TestCaptionSubject(t *testing.T) {
	cases := []struct {
		stream  string
		partial bool
		want    string
	}{
		{"transcript", true, SubjectTranscriptPartial},
		{"transcript", false, SubjectTranscriptFinal},
		{"translation", true, SubjectTranslationPartial},
		{"translation", false, SubjectTranslationFinal},
	}
	for _, tc := range cases {
		if got := CaptionSubject(tc.stream, tc.partial); got != tc.want {
			t.Fatalf("CaptionSubject(%q, %v) = %q, want %q", tc.stream, tc.partial, got, tc.want)
		}
	}
}
