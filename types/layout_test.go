package types

import (
	"regexp"
	"testing"
	"time"
)

func TestLayouts(t *testing.T) {
	at := time.Date(2026, 2, 7, 9, 5, 3, 0, time.UTC)
	if got := at.Format(DayLayout); got != "2026_02_07" {
		t.Errorf("DayLayout = %q", got)
	}
	if got := at.Format(TimestampLayout); got != "2026_02_07_09_05_03" {
		t.Errorf("TimestampLayout = %q", got)
	}
	back, err := time.Parse(TimestampLayout, "2026_02_07_09_05_03")
	if err != nil || !back.Equal(at) {
		t.Errorf("parse = %v, %v", back, err)
	}
}

func TestPermissions(t *testing.T) {
	// Run directories are shared by a group.
	if DirPerm&0o070 != 0o070 || FilePerm&0o060 != 0o060 {
		t.Errorf("perms %o / %o drop group access", DirPerm, FilePerm)
	}
	if DirPerm&0o002 != 0 || FilePerm&0o002 != 0 {
		t.Error("perms must not be world-writable")
	}
}

func TestVersions(t *testing.T) {
	if !regexp.MustCompile(`^\d+\.\d+\.\d+(-[a-zA-Z0-9.]+)?$`).MatchString(Version) {
		t.Errorf("Version %q is not semver", Version)
	}
	if ContractVersion != Version {
		t.Errorf("ContractVersion %q != Version %q", ContractVersion, Version)
	}
}
