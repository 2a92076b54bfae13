package camera

import (
	"reflect"
	"testing"
)

func TestCandidateAddressesLastOctet50(t *testing.T) {
	got, err := candidateAddresses("172.29.100.50")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := []string{"172.29.100.51", "172.29.100.1"}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("candidateAddresses() = %v, want %v", got, want)
	}
}

func TestCandidateAddressesLastOctet51(t *testing.T) {
	got, err := candidateAddresses("172.29.100.51")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := []string{"172.29.100.50", "172.29.100.1"}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("candidateAddresses() = %v, want %v", got, want)
	}
}

func TestCandidateAddressesOtherOctet(t *testing.T) {
	got, err := candidateAddresses("172.29.100.2")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := []string{"172.29.100.51", "172.29.100.50", "172.29.100.1"}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("candidateAddresses() = %v, want %v", got, want)
	}
}

func TestCandidateAddressesRejectsIPv6(t *testing.T) {
	if _, err := candidateAddresses("::1"); err == nil {
		t.Fatal("expected error for non-IPv4 address")
	}
}

func TestMatchAngleExact(t *testing.T) {
	angleMap := map[string]string{"CourtCam-FL": "FL", "CourtCam-FR": "FR"}
	if got := matchAngle(angleMap, "CourtCam-FL"); got != "FL" {
		t.Fatalf("matchAngle() = %q, want FL", got)
	}
}

func TestMatchAngleCaseInsensitive(t *testing.T) {
	angleMap := map[string]string{"CourtCam-FL": "FL"}
	if got := matchAngle(angleMap, "courtcam-fl"); got != "FL" {
		t.Fatalf("matchAngle() = %q, want FL", got)
	}
}

func TestMatchAngleSubstring(t *testing.T) {
	angleMap := map[string]string{"FL": "FL"}
	if got := matchAngle(angleMap, "HERO11-FL-0042"); got != "FL" {
		t.Fatalf("matchAngle() = %q, want FL", got)
	}
}

func TestMatchAngleUnknownWhenNoRuleMatches(t *testing.T) {
	angleMap := map[string]string{"CourtCam-FL": "FL"}
	if got := matchAngle(angleMap, "SomeOtherCamera"); got != UnknownAngle {
		t.Fatalf("matchAngle() = %q, want %q", got, UnknownAngle)
	}
}

func TestDiffChapterSetReturnsOnlyNewChapters(t *testing.T) {
	before := []Chapter{
		{Directory: "100GOPRO", Filename: "GX018471.MP4"},
	}
	after := []Chapter{
		{Directory: "100GOPRO", Filename: "GX018471.MP4"},
		{Directory: "100GOPRO", Filename: "GX028471.MP4"},
	}
	added := DiffChapterSet(before, after)
	if len(added) != 1 || added[0].Filename != "GX028471.MP4" {
		t.Fatalf("DiffChapterSet() = %v, want only GX028471.MP4", added)
	}
}

func TestIcmpReachablePreservesAllCandidatesWithoutRawSocketPrivilege(t *testing.T) {
	// Unprivileged test environments can't open a raw ICMP socket; the
	// pre-filter must degrade to "probe everything" rather than drop
	// candidates it couldn't check.
	candidates := []string{"172.29.100.51", "172.29.100.50", "172.29.100.1"}
	got := icmpReachable(candidates)
	if len(got) != len(candidates) {
		t.Fatalf("icmpReachable() dropped candidates: got %v, want all of %v", got, candidates)
	}
}

func TestSortChaptersByRecordingThenFragmentIndex(t *testing.T) {
	chapters := []Chapter{
		{Filename: "GX028471.MP4"},
		{Filename: "GX011234.MP4"},
		{Filename: "GX018471.MP4"},
	}
	SortChapters(chapters)

	want := []string{"GX011234.MP4", "GX018471.MP4", "GX028471.MP4"}
	for i, c := range chapters {
		if c.Filename != want[i] {
			t.Fatalf("position %d: got %s, want %s", i, c.Filename, want[i])
		}
	}
}
