package subtitles_test

import (
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"

	"vtranscoder/internal/media/probe"
	"vtranscoder/internal/subtitles"
)

func TestDetermineOutputFormat(t *testing.T) {
	cases := []struct {
		codec   string
		allowed []string
		want    string
	}{
		{"subrip", []string{"srt", "vtt"}, "srt"},
		{"hdmv_pgs_subtitle", []string{"srt"}, "srt"},
		{"hdmv_pgs_subtitle", nil, "sup"},
		{"ssa", []string{"srt", "ass"}, "ass"},
		{"webvtt", []string{"ass", "vtt"}, "vtt"},
		{"mystery", nil, "srt"},
		{"dvd_subtitle", []string{"vtt", "srt"}, "vtt"},
	}
	for _, tc := range cases {
		if got := subtitles.DetermineOutputFormat(tc.codec, tc.allowed); got != tc.want {
			t.Errorf("DetermineOutputFormat(%q, %v) = %q, want %q", tc.codec, tc.allowed, got, tc.want)
		}
	}
}

func TestExtractionPlanNumbersRepeatedLanguages(t *testing.T) {
	streams := []probe.SubtitleStream{
		{Index: 2, Language: "eng", Codec: "subrip"},
		{Index: 3, Language: "eng", Codec: "subrip"},
		{Index: 4, Language: "eng", Codec: "hdmv_pgs_subtitle"},
		{Index: 5, Language: "eng", Codec: "subrip"},
		{Index: 6, Language: "slv", Codec: "ass"},
	}
	plan := subtitles.ExtractionPlan("Movie", streams, []string{"srt", "ass", "sup"})
	var names []string
	for _, p := range plan {
		names = append(names, p.FileName)
	}
	want := []string{
		"Movie.eng.srt",
		"Movie.1.eng.srt",
		"Movie.eng.sup",
		"Movie.2.eng.srt",
		"Movie.slv.ass",
	}
	if diff := cmp.Diff(want, names); diff != "" {
		t.Fatalf("names mismatch (-want +got):\n%s", diff)
	}
}

func TestExtractArgs(t *testing.T) {
	native := subtitles.PlannedStream{Stream: probe.SubtitleStream{Index: 2, Codec: "subrip"}, Format: "srt"}
	got := subtitles.ExtractArgs("in.mkv", native, "out.srt", false)
	want := []string{"-n", "-i", "in.mkv", "-map", "0:2", "-c", "copy", "out.srt"}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("native args mismatch (-want +got):\n%s", diff)
	}

	converted := subtitles.PlannedStream{Stream: probe.SubtitleStream{Index: 4, Codec: "subrip"}, Format: "vtt"}
	got = subtitles.ExtractArgs("in.mkv", converted, "out.vtt", true)
	want = []string{"-y", "-i", "in.mkv", "-map", "0:4", "-f", "webvtt", "out.vtt"}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("converted args mismatch (-want +got):\n%s", diff)
	}
}

func TestRepairMojibake(t *testing.T) {
	corrupt := strings.Repeat("è", 25) + " ¹ola ¾aba"

	repaired, changed := subtitles.RepairMojibake([]byte(corrupt), "sl")
	if !changed {
		t.Fatal("expected repair")
	}
	if got := string(repaired); !strings.HasSuffix(got, " šola žaba") || strings.Contains(got, "è") {
		t.Fatalf("unexpected repair: %q", got)
	}

	if _, changed := subtitles.RepairMojibake([]byte(corrupt), "en"); changed {
		t.Fatal("only Slovenian payloads are repaired")
	}
	if _, changed := subtitles.RepairMojibake([]byte("è ¹ ¾"), "sl"); changed {
		t.Fatal("below threshold should be left alone")
	}
}
