package rundir

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/pithecene-io/stagekit/types"
)

var fixedNow = time.Date(2020, 4, 25, 17, 5, 55, 0, time.UTC)

const fixedDay = "2020_04_25"

func pinClock(t *testing.T) {
	t.Helper()
	prev := Clock
	Clock = func() time.Time { return fixedNow }
	t.Cleanup(func() { Clock = prev })
}

// versionRoot returns a set-up version root with ten runs for today.
func versionRoot(t *testing.T) (string, []string) {
	t.Helper()
	pinClock(t)
	root := t.TempDir()
	if err := SetupVersionRoot(root, true); err != nil {
		t.Fatalf("SetupVersionRoot failed: %v", err)
	}
	var runs []string
	for range 10 {
		dir, err := Make(root)
		if err != nil {
			t.Fatalf("Make failed: %v", err)
		}
		runs = append(runs, dir)
	}
	return root, runs
}

func isSymlink(t *testing.T, path string) bool {
	t.Helper()
	info, err := os.Lstat(path)
	if err != nil {
		t.Fatalf("lstat %s: %v", path, err)
	}
	return info.Mode()&os.ModeSymlink != 0
}

func isDir(t *testing.T, path string) bool {
	t.Helper()
	info, err := os.Stat(path)
	if err != nil {
		t.Fatalf("stat %s: %v", path, err)
	}
	return info.IsDir()
}

func resolvesTo(t *testing.T, link, want string) {
	t.Helper()
	if !isSymlink(t, link) {
		t.Fatalf("%s is not a symlink", link)
	}
	got, err := filepath.EvalSymlinks(link)
	if err != nil {
		t.Fatalf("eval %s: %v", link, err)
	}
	wantResolved, err := filepath.EvalSymlinks(want)
	if err != nil {
		t.Fatalf("eval %s: %v", want, err)
	}
	if got != wantResolved {
		t.Errorf("%s resolves to %s, want %s", link, got, wantResolved)
	}
}

func TestNext_Sequence(t *testing.T) {
	pinClock(t)
	root := t.TempDir()

	dir, err := Next(root)
	if err != nil {
		t.Fatalf("Next failed: %v", err)
	}
	if filepath.Base(dir) != fixedDay+".01" {
		t.Errorf("first run = %s, want %s.01", filepath.Base(dir), fixedDay)
	}
	if _, err := os.Stat(dir); !os.IsNotExist(err) {
		t.Error("Next should not create the directory")
	}

	if err := os.Mkdir(dir, types.DirPerm); err != nil {
		t.Fatal(err)
	}
	dir, err = Next(root)
	if err != nil {
		t.Fatalf("Next failed: %v", err)
	}
	if filepath.Base(dir) != fixedDay+".02" {
		t.Errorf("second run = %s, want %s.02", filepath.Base(dir), fixedDay)
	}
}

func TestNext_IgnoresMalformedAndOtherDays(t *testing.T) {
	pinClock(t)
	root := t.TempDir()
	for _, name := range []string{
		fixedDay + ".01",
		fixedDay + ".02",
		fixedDay + ".bogus",
		fixedDay + ".",
		"2020_04_24.07",
		"best",
	} {
		if err := os.Mkdir(filepath.Join(root, name), types.DirPerm); err != nil {
			t.Fatal(err)
		}
	}

	dir, err := Next(root)
	if err != nil {
		t.Fatalf("Next failed: %v", err)
	}
	if filepath.Base(dir) != fixedDay+".03" {
		t.Errorf("got %s, want %s.03", filepath.Base(dir), fixedDay)
	}
}

func TestNext_WidensPastTwoDigits(t *testing.T) {
	pinClock(t)
	root := t.TempDir()
	if err := os.Mkdir(filepath.Join(root, fixedDay+".99"), types.DirPerm); err != nil {
		t.Fatal(err)
	}
	dir, err := Next(root)
	if err != nil {
		t.Fatalf("Next failed: %v", err)
	}
	if filepath.Base(dir) != fixedDay+".100" {
		t.Errorf("got %s, want %s.100", filepath.Base(dir), fixedDay)
	}
}

func TestNext_MissingRoot(t *testing.T) {
	_, err := Next(filepath.Join(t.TempDir(), "missing"))
	if !errors.Is(err, types.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestNext_ResolvesSymlinkedRoot(t *testing.T) {
	pinClock(t)
	target := t.TempDir()
	alias := filepath.Join(t.TempDir(), "alias")
	if err := os.Symlink(target, alias); err != nil {
		t.Fatal(err)
	}
	if _, err := Make(target); err != nil {
		t.Fatal(err)
	}

	dir, err := Next(alias)
	if err != nil {
		t.Fatalf("Next failed: %v", err)
	}
	if filepath.Base(dir) != fixedDay+".02" {
		t.Errorf("got %s through alias, want %s.02", filepath.Base(dir), fixedDay)
	}
}

func TestMake_Permissions(t *testing.T) {
	pinClock(t)
	dir, err := Make(t.TempDir())
	if err != nil {
		t.Fatalf("Make failed: %v", err)
	}
	info, err := os.Stat(dir)
	if err != nil {
		t.Fatal(err)
	}
	if info.Mode().Perm() != types.DirPerm {
		t.Errorf("mode = %o, want %o", info.Mode().Perm(), types.DirPerm)
	}
}

func TestSetupVersionRoot(t *testing.T) {
	tests := []struct {
		name           string
		withProduction bool
	}{
		{"no production", false},
		{"with production", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			root := filepath.Join(t.TempDir(), "nested", "root")
			if err := SetupVersionRoot(root, tt.withProduction); err != nil {
				t.Fatalf("SetupVersionRoot failed: %v", err)
			}
			for _, name := range []string{types.BestLink, types.LatestLink} {
				path := filepath.Join(root, name)
				if isSymlink(t, path) || !isDir(t, path) {
					t.Errorf("%s should be a placeholder directory", name)
				}
			}
			_, err := os.Stat(filepath.Join(root, types.ProductionRuns))
			if tt.withProduction && err != nil {
				t.Errorf("production-runs missing: %v", err)
			}
			if !tt.withProduction && !os.IsNotExist(err) {
				t.Errorf("production-runs should not exist, stat err = %v", err)
			}
		})
	}
}

func TestSetupVersionRoot_LeavesExistingLinks(t *testing.T) {
	root, runs := versionRoot(t)
	if err := MarkBest(runs[3]); err != nil {
		t.Fatal(err)
	}
	if err := SetupVersionRoot(root, true); err != nil {
		t.Fatalf("second SetupVersionRoot failed: %v", err)
	}
	resolvesTo(t, filepath.Join(root, types.BestLink), runs[3])
	if isSymlink(t, filepath.Join(root, types.LatestLink)) {
		t.Error("latest placeholder was replaced")
	}
}

func TestMarkExplicit(t *testing.T) {
	root, runs := versionRoot(t)
	for _, name := range []string{types.BestLink, types.LatestLink, "other_link"} {
		if err := MarkExplicit(runs[4], root, name); err != nil {
			t.Fatalf("MarkExplicit(%s) failed: %v", name, err)
		}
		resolvesTo(t, filepath.Join(root, name), runs[4])
	}
}

func TestMarkExplicit_NestedVersionRoot(t *testing.T) {
	root, runs := versionRoot(t)
	prod := filepath.Join(root, types.ProductionRuns)
	if err := MarkExplicit(runs[2], prod, "prod_run"); err != nil {
		t.Fatalf("MarkExplicit failed: %v", err)
	}
	resolvesTo(t, filepath.Join(prod, "prod_run"), runs[2])
}

func TestMarkExplicit_Idempotent(t *testing.T) {
	root, runs := versionRoot(t)
	for range 2 {
		if err := MarkLatest(runs[0]); err != nil {
			t.Fatalf("MarkLatest failed: %v", err)
		}
	}
	resolvesTo(t, filepath.Join(root, types.LatestLink), runs[0])
}

func TestMarkExplicit_RegularFileConflict(t *testing.T) {
	root, runs := versionRoot(t)
	path := filepath.Join(root, "occupied")
	if err := os.WriteFile(path, []byte("keep me"), types.FilePerm); err != nil {
		t.Fatal(err)
	}

	err := MarkExplicit(runs[0], root, "occupied")
	if !errors.Is(err, types.ErrConflict) {
		t.Fatalf("expected ErrConflict, got %v", err)
	}
	data, err := os.ReadFile(path)
	if err != nil || string(data) != "keep me" {
		t.Errorf("file was modified: %q, %v", data, err)
	}
}

func TestMarkLinkExplicit(t *testing.T) {
	tests := []struct {
		name string
		mark func(runDir, versionRoot string) error
		link string
	}{
		{"latest", MarkLatestExplicit, types.LatestLink},
		{"best", MarkBestExplicit, types.BestLink},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			root, runs := versionRoot(t)
			for _, dir := range []string{root, filepath.Join(root, types.ProductionRuns)} {
				if err := tt.mark(runs[5], dir); err != nil {
					t.Fatalf("mark failed: %v", err)
				}
				resolvesTo(t, filepath.Join(dir, tt.link), runs[5])
			}
		})
	}
}

func TestMarkLink(t *testing.T) {
	tests := []struct {
		name string
		mark func(runDir string) error
		link string
	}{
		{"latest", MarkLatest, types.LatestLink},
		{"best", MarkBest, types.BestLink},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			root, runs := versionRoot(t)
			if err := tt.mark(runs[7]); err != nil {
				t.Fatalf("mark failed: %v", err)
			}
			resolvesTo(t, filepath.Join(root, tt.link), runs[7])
		})
	}
}

func TestMarkProduction(t *testing.T) {
	tests := []struct {
		name string
		date string
		want string
	}{
		{"explicit date", "2020_04_25", "2020_04_25"},
		{"other date", "2019_12_31", "2019_12_31"},
		{"today", "", fixedDay},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			root, runs := versionRoot(t)
			if err := MarkProduction(runs[1], tt.date); err != nil {
				t.Fatalf("MarkProduction failed: %v", err)
			}
			resolvesTo(t, filepath.Join(root, types.ProductionRuns, tt.want), runs[1])
		})
	}
}

func TestMarkProduction_InvalidDate(t *testing.T) {
	for _, date := range []string{"the_time_is_now", "2020-04-25", "2020_13_01", "20200425"} {
		t.Run(date, func(t *testing.T) {
			root, runs := versionRoot(t)
			err := MarkProduction(runs[0], date)
			if !errors.Is(err, types.ErrValidation) {
				t.Fatalf("expected ErrValidation, got %v", err)
			}
			entries, err := os.ReadDir(filepath.Join(root, types.ProductionRuns))
			if err != nil {
				t.Fatal(err)
			}
			if len(entries) != 0 {
				t.Errorf("production-runs should be empty, has %d entries", len(entries))
			}
		})
	}
}

func TestMarkProductionExplicit_NoDate(t *testing.T) {
	root, runs := versionRoot(t)
	prod := filepath.Join(root, types.ProductionRuns)
	if err := MarkProductionExplicit(runs[6], prod, ""); err != nil {
		t.Fatalf("MarkProductionExplicit failed: %v", err)
	}
	resolvesTo(t, filepath.Join(prod, fixedDay), runs[6])
}

func TestMakeLinks(t *testing.T) {
	tests := []struct {
		name    string
		success bool
		opts    LinkOptions
		want    Promotion
	}{
		{"failed run", false, LinkOptions{MarkBest: true}, Promotion{}},
		{"incomplete run", true, LinkOptions{Incomplete: true}, Promotion{}},
		{"latest only", true, LinkOptions{}, Promotion{Latest: true}},
		{"best", true, LinkOptions{MarkBest: true}, Promotion{Latest: true, Best: true}},
		{"production", true, LinkOptions{MarkBest: true, ProductionTag: "2020_04_20"},
			Promotion{Latest: true, Best: true, Production: "2020_04_20"}},
		{"production without best", true, LinkOptions{ProductionTag: "2020_04_20"}, Promotion{Latest: true}},
		{"bad production tag", true, LinkOptions{MarkBest: true, ProductionTag: "soon"},
			Promotion{Latest: true, Best: true}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			root, runs := versionRoot(t)
			got, err := MakeLinks(tt.success, runs[9], tt.opts, nil)
			if err != nil {
				t.Fatalf("MakeLinks failed: %v", err)
			}
			if got != tt.want {
				t.Errorf("promotion = %+v, want %+v", got, tt.want)
			}
			if got.Latest {
				resolvesTo(t, filepath.Join(root, types.LatestLink), runs[9])
			} else if isSymlink(t, filepath.Join(root, types.LatestLink)) {
				t.Error("latest moved for a run that should not be promoted")
			}
			if !got.Best && isSymlink(t, filepath.Join(root, types.BestLink)) {
				t.Error("best moved unexpectedly")
			}
			if got.Any() != (tt.want != Promotion{}) {
				t.Errorf("Any() = %v", got.Any())
			}
		})
	}
}

func TestValidateBestAndProductionTags(t *testing.T) {
	tests := []struct {
		opts    LinkOptions
		wantErr bool
	}{
		{LinkOptions{}, false},
		{LinkOptions{MarkBest: true, ProductionTag: "2020_01_01"}, false},
		{LinkOptions{Incomplete: true}, false},
		{LinkOptions{Incomplete: true, MarkBest: true}, true},
		{LinkOptions{Incomplete: true, ProductionTag: "2020_01_01"}, true},
	}
	for _, tt := range tests {
		err := ValidateBestAndProductionTags(tt.opts)
		if (err != nil) != tt.wantErr {
			t.Errorf("Validate(%+v) = %v, wantErr %v", tt.opts, err, tt.wantErr)
		}
		if err != nil && !errors.Is(err, types.ErrValidation) {
			t.Errorf("expected ErrValidation, got %v", err)
		}
	}
}

func TestScenario_SetupAllocateMarkLatest(t *testing.T) {
	pinClock(t)
	root := t.TempDir()
	if err := SetupVersionRoot(root, false); err != nil {
		t.Fatal(err)
	}
	dir, err := Make(root)
	if err != nil {
		t.Fatal(err)
	}
	if err := MarkLatest(dir); err != nil {
		t.Fatal(err)
	}

	resolvesTo(t, filepath.Join(root, types.LatestLink), dir)
	best := filepath.Join(root, types.BestLink)
	if isSymlink(t, best) || !isDir(t, best) {
		t.Error("best should still be a placeholder directory")
	}
}
